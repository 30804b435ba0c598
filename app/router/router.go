package router

import (
	"net/http"

	"trustcompute/app/handler"
	"trustcompute/app/middleware"

	"github.com/gin-gonic/gin"
)

// Router Router
type Router struct {
	rpcHandler       *handler.JSONRPCHandler
	workOrderHandler *handler.WorkOrderHandler
	apiKey           string
}

// NewRouter creates a new Router
func NewRouter(rpcHandler *handler.JSONRPCHandler, workOrderHandler *handler.WorkOrderHandler, apiKey string) *Router {
	return &Router{
		rpcHandler:       rpcHandler,
		workOrderHandler: workOrderHandler,
		apiKey:           apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	api := engine.Group("/")
	api.Use(middleware.AuthMiddleware(r.apiKey))
	{
		// JSON-RPC listener: work orders, worker registry, receipts
		api.POST("/", r.rpcHandler.Handle)

		// Result push for a submitted work order
		if r.workOrderHandler != nil {
			api.GET("/ws/work-orders/:id", r.workOrderHandler.ResultStream)
		}
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "methods": len(r.rpcHandler.Methods())})
	})
}
