package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a set of routes on a group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// publicRegistrar is implemented by registrars whose routes bypass the
// middleware added with Protect.
type publicRegistrar interface {
	IsPublic() bool
}

// Router mounts route groups under /api/<version>. Every group gets the
// middleware passed to Use; only groups not marked public get the
// middleware passed to Protect.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	protect    []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIVersion sets the version segment of the prefix
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a Router on engine, defaulting to /api/v1
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware to every group under the API prefix
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Protect adds middleware, typically authentication, to non-public groups
func (r *Router) Protect(middleware ...gin.HandlerFunc) *Router {
	r.protect = append(r.protect, middleware...)
	return r
}

// Register queues a registrar for Setup
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// BasePath returns the versioned prefix, e.g. /api/v1
func (r *Router) BasePath() string {
	return "/api/" + r.apiVersion
}

// Setup mounts all queued registrars on the engine
func (r *Router) Setup() {
	api := r.engine.Group(r.BasePath(), r.middleware...)
	protected := api.Group("", r.protect...)

	for _, registrar := range r.registrars {
		if p, ok := registrar.(publicRegistrar); ok && p.IsPublic() {
			registrar.RegisterRoutes(api)
			continue
		}
		registrar.RegisterRoutes(protected)
	}
}

// DomainGroup collects the routes of one resource under a prefix
type DomainGroup struct {
	name       string
	prefix     string
	public     bool
	routes     []routeDefinition
	subgroups  []*DomainGroup
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a group. An empty prefix mounts routes directly
// on the parent.
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Public marks the group as reachable without the Protect middleware.
// It has no effect on subgroups, which follow their parent.
func (dg *DomainGroup) Public() *DomainGroup {
	dg.public = true
	return dg
}

// IsPublic reports whether the group bypasses the Protect middleware
func (dg *DomainGroup) IsPublic() bool {
	return dg.public
}

// Use adds middleware to this group only
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// Group adds a nested group and returns it
func (dg *DomainGroup) Group(name, prefix string) *DomainGroup {
	sub := NewDomainGroup(name, prefix)
	dg.subgroups = append(dg.subgroups, sub)
	return sub
}

// RegisterRoutes implements RouteRegistrar
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix, dg.middleware...)
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
	for _, sub := range dg.subgroups {
		sub.RegisterRoutes(group)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}
