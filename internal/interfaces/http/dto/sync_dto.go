package dto

// TriggerIngestionRequest is the body of POST /sync/ingestion. Without a
// shop ID every active shop of the tenant is ingested.
type TriggerIngestionRequest struct {
	ShopID *int64 `json:"shop_id" binding:"omitempty,gt=0"`
}

// AuthorizationCallbackQuery is the query of the marketplace OAuth redirect.
// state carries the tenant ID the authorization link was issued for.
type AuthorizationCallbackQuery struct {
	Code   string `form:"code" binding:"required,max=256"`
	ShopID int64  `form:"shop_id" binding:"required,gt=0"`
	State  string `form:"state" binding:"required,uuid"`
}

// ShopIDParam binds the :shop_id path segment
type ShopIDParam struct {
	ShopID int64 `uri:"shop_id" binding:"required,gt=0"`
}
