// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
)

// UploadHandler handles file upload operations
type UploadHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadChunk(c echo.Context) error
	HandleCompleteUpload(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleGetUploadJob(c echo.Context) error
	HandleGetRecentFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// AnalysisHandler handles analysis session operations
type AnalysisHandler interface {
	HandleStartAnalysis(c echo.Context) error
	HandleAnalysisStatus(c echo.Context) error
	HandleSessionKeepAlive(c echo.Context) error
	HandleAnalysisEvents(c echo.Context) error
	HandleSeries(c echo.Context) error
	HandleSeriesMsgpack(c echo.Context) error
	HandleDailyStats(c echo.Context) error
	HandleHealthReport(c echo.Context) error
}

// ComparisonHandler handles full-vs-sample comparison operations
type ComparisonHandler interface {
	HandleStartComparison(c echo.Context) error
	HandleComparisonStatus(c echo.Context) error
}

// CatalogHandler serves and replaces the metric display catalog
type CatalogHandler interface {
	HandleGetCatalog(c echo.Context) error
	HandleUploadCatalog(c echo.Context) error
	Current() *models.MetricCatalog
	SetCurrent(catalogID string, catalog *models.MetricCatalog)
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// AnalysisManager defines the interface for session management
// This allows mocking in tests
type AnalysisManager interface {
	StartAnalysis(fileIDs []string, filePaths []string, opts parser.Options) (*models.AnalysisSession, error)
	GetSession(id string) (*models.AnalysisSession, bool)
	TouchSession(id string) bool
	DeleteParsedFile(fileID string) error
	MetricCount(ctx context.Context, id, metric string) (int, error)
	SeriesWindow(ctx context.Context, id, metric string, from, to time.Time, points int) ([]models.Sample, error)
	DailyStats(id, metric string) ([]models.DailyStat, error)
	ComputeHealth(id string, params battery.Params, catalog *models.MetricCatalog) (*models.HealthReport, error)
	StartComparison(fullFileID, sampleFileID, fullPath, samplePath string, parseOpts parser.Options, opts battery.CompareOptions) (*models.ComparisonSession, error)
	GetComparison(id string) (*models.ComparisonSession, bool)
}
