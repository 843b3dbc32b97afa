package middleware

import (
	"github.com/gin-gonic/gin"
)

// RouteOpt route options.
type RouteOpt struct {
	IsAuth bool
}

// Router registers routes, putting the auth middleware in front of the ones
// that need it.
type Router struct {
	r    gin.IRoutes
	auth gin.HandlerFunc
}

func NewRouter(r gin.IRoutes, auth gin.HandlerFunc) *Router {
	return &Router{r: r, auth: auth}
}

func (rt *Router) handlers(h gin.HandlerFunc, opt RouteOpt) []gin.HandlerFunc {
	if opt.IsAuth && rt.auth != nil {
		return []gin.HandlerFunc{rt.auth, h}
	}
	return []gin.HandlerFunc{h}
}

func (rt *Router) POST(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.POST(path, rt.handlers(h, opt)...)
}

func (rt *Router) GET(path string, h gin.HandlerFunc, opt RouteOpt) {
	rt.r.GET(path, rt.handlers(h, opt)...)
}
