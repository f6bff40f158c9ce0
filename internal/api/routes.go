// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/notify"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Manager  *dataset.Manager
	Notifier *notify.Notifier
	Version  string
}

// Handlers holds all handler instances
type Handlers struct {
	Dataset DatasetHandler
	Events  *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	h := NewHandler(deps.Manager, deps.Notifier, deps.Version)
	return &Handlers{
		Dataset: h,
		Events:  NewWebSocketHandler(deps.Manager),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Dataset.HandleHealth)

	// Dataset state machine routes
	datasetGroup := e.Group("/api/dataset")
	datasetGroup.GET("/state", handlers.Dataset.HandleGetState)
	datasetGroup.GET("/state/msgpack", handlers.Dataset.HandleGetStateMsgpack)
	datasetGroup.POST("/select", handlers.Dataset.HandleSelectFile)
	datasetGroup.POST("/sheet", handlers.Dataset.HandleConfirmSheet)
	datasetGroup.POST("/commit", handlers.Dataset.HandleCommit)
	datasetGroup.POST("/description", handlers.Dataset.HandleSetDescription)
	datasetGroup.POST("/description/generate", handlers.Dataset.HandleGenerateDescription)
	datasetGroup.POST("/resolve", handlers.Dataset.HandleResolveMismatch)
	datasetGroup.POST("/clear", handlers.Dataset.HandleClear)
	datasetGroup.GET("/default/preview", handlers.Dataset.HandlePreviewDefault)
	datasetGroup.GET("/diagnostics", handlers.Dataset.HandleDiagnostics)

	// Session lifecycle routes
	sessionGroup := e.Group("/api/session")
	sessionGroup.POST("/changed", handlers.Dataset.HandleSessionChanged)
	sessionGroup.POST("/refresh", handlers.Dataset.HandleSessionRefresh)

	// Notification routes
	e.POST("/api/notice/dismiss", handlers.Dataset.HandleDismissNotice)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/events", handlers.Events.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler
}
