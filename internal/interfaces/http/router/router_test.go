package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))

	assert.Equal(t, "v2", r.apiVersion)
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v1"))

	group := NewDomainGroup("sync", "/sync")
	group.POST("/ingestion", func(c *gin.Context) {
		c.String(http.StatusOK, "started")
	})

	r.Register(group)
	r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync/ingestion", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "started", w.Body.String())
}

func TestRouterUse(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)
	r.Use(func(c *gin.Context) {
		c.Header("X-Api-Middleware", "applied")
		c.Next()
	})

	g := NewDomainGroup("connections", "/connections")
	g.GET("", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.Register(g).Setup()

	engine.GET("/outside", func(c *gin.Context) { c.Status(http.StatusOK) })

	inside := httptest.NewRecorder()
	engine.ServeHTTP(inside, httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil))
	assert.Equal(t, "applied", inside.Header().Get("X-Api-Middleware"))

	outside := httptest.NewRecorder()
	engine.ServeHTTP(outside, httptest.NewRequest(http.MethodGet, "/outside", nil))
	assert.Empty(t, outside.Header().Get("X-Api-Middleware"))
}

func TestRouterProtect_SkipsPublicGroups(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }

	r := NewRouter(engine).Protect(deny)
	r.Register(NewDomainGroup("marketplace", "/marketplace").Public().
		GET("/callback", func(c *gin.Context) { c.Status(http.StatusOK) }))
	r.Register(NewDomainGroup("connections", "/connections").
		GET("", func(c *gin.Context) { c.Status(http.StatusOK) }))
	r.Setup()

	public := httptest.NewRecorder()
	engine.ServeHTTP(public, httptest.NewRequest(http.MethodGet, "/api/v1/marketplace/callback", nil))
	assert.Equal(t, http.StatusOK, public.Code)

	protected := httptest.NewRecorder()
	engine.ServeHTTP(protected, httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil))
	assert.Equal(t, http.StatusUnauthorized, protected.Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("connections", "/connections")
		assert.Equal(t, "connections", g.Name())
		assert.Equal(t, "/connections", g.Prefix())
		assert.False(t, g.IsPublic())
		assert.True(t, g.Public().IsPublic())
	})

	t.Run("registers GET and POST routes", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("connections", "/connections")
		g.GET("", func(c *gin.Context) {
			c.String(http.StatusOK, "list")
		}).POST("/:shop_id/disable", func(c *gin.Context) {
			c.String(http.StatusOK, c.Param("shop_id"))
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w1 := httptest.NewRecorder()
		engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil))
		assert.Equal(t, http.StatusOK, w1.Code)
		assert.Equal(t, "list", w1.Body.String())

		w2 := httptest.NewRecorder()
		engine.ServeHTTP(w2, httptest.NewRequest(http.MethodPost, "/api/v1/connections/220011/disable", nil))
		assert.Equal(t, http.StatusOK, w2.Code)
		assert.Equal(t, "220011", w2.Body.String())
	})

	t.Run("does not register other methods", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("sync", "/sync")
		g.POST("/ingestion", func(c *gin.Context) { c.Status(http.StatusOK) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sync/ingestion", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("sync", "/sync")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.POST("/normalization", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync/normalization", nil))
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("system", "")
		g.GET("/health", func(c *gin.Context) {
			c.String(http.StatusOK, "health")
		})
		g.Group("info", "/system").GET("/info", func(c *gin.Context) {
			c.String(http.StatusOK, "info")
		})

		g.RegisterRoutes(engine.Group("/api/v1"))

		w1 := httptest.NewRecorder()
		engine.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
		assert.Equal(t, "health", w1.Body.String())

		w2 := httptest.NewRecorder()
		engine.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))
		assert.Equal(t, "info", w2.Body.String())
	})
}
