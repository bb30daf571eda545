package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/erp/ordersync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// fieldTags are consulted in order when naming a field in an error detail.
// Sync requests bind from JSON bodies, callback query strings and URI params.
var fieldTags = []string{"json", "form", "uri"}

// SetupValidator makes validation errors report request field names
// (shop_id, code, state) instead of Go struct field names.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(requestFieldName)
}

func requestFieldName(fld reflect.StructField) string {
	for _, tag := range fieldTags {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		switch name {
		case "-":
			return ""
		case "":
			continue
		default:
			return name
		}
	}
	return ""
}

// FormatValidationErrors converts a bind error into the error envelope.
// Errors that never reached the validator (malformed JSON, a non-numeric
// shop_id) are reported as ERR_INVALID_JSON without details.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return dto.NewErrorResponseWithRequestID(dto.ErrCodeInvalidJSON, "Request body could not be parsed", requestID)
	}

	details := make([]dto.ValidationDetail, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, dto.ValidationDetail{
			Field:   fe.Field(),
			Message: getValidationMessage(fe),
		})
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 for a failed bind
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

// Messages keyed by validator tag. Tags with a parameter take it as suffix.
var (
	fixedMessages = map[string]string{
		"required": "This field is required",
		"uuid":     "Invalid UUID format",
		"url":      "Invalid URL format",
		"numeric":  "Must be numeric",
	}
	paramMessages = map[string]string{
		"oneof": "Must be one of: ",
		"gte":   "Must be greater than or equal to ",
		"lte":   "Must be less than or equal to ",
		"gt":    "Must be greater than ",
		"lt":    "Must be less than ",
		"len":   "Must be exactly ",
	}
)

func getValidationMessage(fe validator.FieldError) string {
	tag := fe.Tag()
	if msg, ok := fixedMessages[tag]; ok {
		return msg
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min", "max":
		bound := "at least "
		if tag == "max" {
			bound = "at most "
		}
		msg := "Must be " + bound + fe.Param()
		if isString {
			msg += " characters"
		}
		return msg
	case "len":
		if isString {
			return paramMessages[tag] + fe.Param() + " characters"
		}
	}

	if prefix, ok := paramMessages[tag]; ok {
		return prefix + fe.Param()
	}
	return "Invalid value"
}
