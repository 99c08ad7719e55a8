// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/storage"
	"github.com/batteryview/backend/internal/upload"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store     storage.Store
	Manager   AnalysisManager
	UploadMgr *upload.Manager
	Version   string
	Defaults  battery.Params
	// ReferenceVoltage seeds comparison DoD rows; zero falls back to the
	// full-charge voltage.
	ReferenceVoltage float64
	// DropFirstDefault applies when a request does not say whether to
	// discard the first sample of every series.
	DropFirstDefault bool
	// AllowFileDeletion gates DELETE /api/files/:id per deployment.
	AllowFileDeletion bool
	// AllowedFileTypes is a comma-separated extension whitelist for
	// uploads; empty allows everything.
	AllowedFileTypes string
}

// Handlers holds all handler instances
type Handlers struct {
	Health     HealthHandler
	Upload     UploadHandler
	Analysis   AnalysisHandler
	Comparison ComparisonHandler
	Catalog    CatalogHandler
	WS         *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	catalog := NewCatalogHandler(deps.Store)
	return &Handlers{
		Health:     NewHealthHandler(deps.Version),
		Upload:     NewUploadHandler(deps.Store, deps.Manager, deps.UploadMgr, deps.AllowFileDeletion, deps.AllowedFileTypes),
		Analysis:   NewAnalysisHandler(deps.Store, deps.Manager, catalog, deps.Defaults, deps.DropFirstDefault),
		Comparison: NewComparisonHandler(deps.Store, deps.Manager, deps.Defaults, deps.ReferenceVoltage, deps.DropFirstDefault),
		Catalog:    catalog,
		WS:         NewWebSocketHandler(deps.Store, catalog),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check (bare path for load balancers, /api path for clients)
	e.GET("/health", handlers.Health.HandleHealth)
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Upload routes
	uploadGroup := e.Group("/api/upload")
	uploadGroup.POST("", handlers.Upload.HandleUploadFile)
	uploadGroup.POST("/binary", handlers.Upload.HandleUploadBinary)
	uploadGroup.POST("/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.GET("/jobs/:id", handlers.Upload.HandleGetUploadJob)

	// File management routes
	fileGroup := e.Group("/api/files")
	fileGroup.GET("", handlers.Upload.HandleGetRecentFiles)
	fileGroup.GET("/:id", handlers.Upload.HandleGetFile)
	fileGroup.DELETE("/:id", handlers.Upload.HandleDeleteFile)
	fileGroup.PUT("/:id/name", handlers.Upload.HandleRenameFile)

	// Analysis session routes
	analysisGroup := e.Group("/api/analyses")
	analysisGroup.POST("", handlers.Analysis.HandleStartAnalysis)
	analysisGroup.GET("/:sessionId", handlers.Analysis.HandleAnalysisStatus)
	analysisGroup.POST("/:sessionId/keepalive", handlers.Analysis.HandleSessionKeepAlive)
	analysisGroup.GET("/:sessionId/events", handlers.Analysis.HandleAnalysisEvents)
	analysisGroup.GET("/:sessionId/series/:metric", handlers.Analysis.HandleSeries)
	analysisGroup.GET("/:sessionId/series/:metric/msgpack", handlers.Analysis.HandleSeriesMsgpack)
	analysisGroup.GET("/:sessionId/daily/:metric", handlers.Analysis.HandleDailyStats)
	analysisGroup.GET("/:sessionId/health", handlers.Analysis.HandleHealthReport)

	// Comparison routes
	comparisonGroup := e.Group("/api/comparisons")
	comparisonGroup.POST("", handlers.Comparison.HandleStartComparison)
	comparisonGroup.GET("/:sessionId", handlers.Comparison.HandleComparisonStatus)

	// Metric catalog routes
	e.GET("/api/catalog", handlers.Catalog.HandleGetCatalog)
	e.POST("/api/catalog", handlers.Catalog.HandleUploadCatalog)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/ws/upload", handlers.WS.HandleWebSocket)
}

// SetupMiddleware configures API-level middleware
func SetupMiddleware(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler
}
