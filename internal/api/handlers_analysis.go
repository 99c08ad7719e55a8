// handlers_analysis.go - Analysis session operation handlers
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
	"github.com/batteryview/backend/internal/session"
	"github.com/batteryview/backend/internal/storage"
)

// AnalysisHandlerImpl implements the AnalysisHandler interface
type AnalysisHandlerImpl struct {
	store            storage.Store
	manager          AnalysisManager
	catalog          CatalogHandler
	registry         *parser.Registry
	defaults         battery.Params
	dropFirstDefault bool
}

// NewAnalysisHandler creates a new analysis handler instance. defaults
// seeds the health-report parameters; every request may override them.
func NewAnalysisHandler(store storage.Store, manager AnalysisManager, catalog CatalogHandler, defaults battery.Params, dropFirstDefault bool) AnalysisHandler {
	return &AnalysisHandlerImpl{
		store:            store,
		manager:          manager,
		catalog:          catalog,
		registry:         parser.GetGlobalRegistry(),
		defaults:         defaults,
		dropFirstDefault: dropFirstDefault,
	}
}

// HandleStartAnalysis starts a new analysis session for one or more
// export documents
func (h *AnalysisHandlerImpl) HandleStartAnalysis(c echo.Context) error {
	var req startAnalysisRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	// Normalize to array of file IDs
	fileIDs := req.normalizeFileIDs()
	if len(fileIDs) == 0 {
		return NewValidationError("fileId or fileIds")
	}

	// Get file paths for all files
	filePaths, validFileIDs, err := h.resolveFilePaths(fileIDs)
	if err != nil {
		return err
	}

	// Reject unreadable documents before committing a session; the
	// async path would only surface this after polling.
	for i, path := range filePaths {
		if _, err := h.registry.FindParser(path); err != nil {
			return NewUnprocessableError("INVALID_FORMAT",
				fmt.Sprintf("file %s is not a recognized export document", validFileIDs[i]), err)
		}
	}

	dropFirst := h.dropFirstDefault
	if req.DropFirstSample != nil {
		dropFirst = *req.DropFirstSample
	}

	opts := parser.Options{DropFirstSample: dropFirst}
	sess, err := h.manager.StartAnalysis(validFileIDs, filePaths, opts)
	if err != nil {
		return NewInternalError("failed to start analysis", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleAnalysisStatus returns the current status of an analysis session
func (h *AnalysisHandlerImpl) HandleAnalysisStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.manager.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.manager.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive extends session lifetime for active viewing
func (h *AnalysisHandlerImpl) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if ok := h.manager.TouchSession(id); !ok {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleAnalysisEvents streams analysis progress via SSE
func (h *AnalysisHandlerImpl) HandleAnalysisEvents(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	// Get initial session state
	sess, ok := h.manager.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}

	// Send initial status
	h.sendSSEData(c, sess)

	// Stream updates until complete or error
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	timeout := time.NewTimer(5 * time.Minute)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.manager.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)

			// Stop streaming if complete or error
			if sess.Status == models.SessionStatusComplete ||
				sess.Status == models.SessionStatusError {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil
		}
	}
}

// HandleSeries returns samples of one metric, windowed and optionally
// bucket-downsampled for charting
func (h *AnalysisHandlerImpl) HandleSeries(c echo.Context) error {
	id, metric, err := h.seriesParams(c)
	if err != nil {
		return err
	}

	from, to, points, err := h.windowParams(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	samples, err := h.manager.SeriesWindow(ctx, id, metric, from, to, points)
	if err != nil {
		return h.mapSessionError(c, err)
	}
	total, err := h.manager.MetricCount(ctx, id, metric)
	if err != nil {
		return h.mapSessionError(c, err)
	}

	h.manager.TouchSession(id)

	return c.JSON(http.StatusOK, seriesResponse{
		Metric:   metric,
		Total:    total,
		Returned: len(samples),
		Samples:  samples,
	})
}

// HandleSeriesMsgpack returns the same window as HandleSeries encoded as
// a MessagePack blob, which large chart windows transfer far cheaper
// than JSON
func (h *AnalysisHandlerImpl) HandleSeriesMsgpack(c echo.Context) error {
	id, metric, err := h.seriesParams(c)
	if err != nil {
		return err
	}

	from, to, points, err := h.windowParams(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	samples, err := h.manager.SeriesWindow(ctx, id, metric, from, to, points)
	if err != nil {
		return h.mapSessionError(c, err)
	}

	h.manager.TouchSession(id)

	data, err := msgpack.Marshal(samples)
	if err != nil {
		return NewInternalError("failed to encode samples", err)
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleDailyStats returns per-calendar-day min/max/mean rows for one metric
func (h *AnalysisHandlerImpl) HandleDailyStats(c echo.Context) error {
	id, metric, err := h.seriesParams(c)
	if err != nil {
		return err
	}

	stats, err := h.manager.DailyStats(id, metric)
	if err != nil {
		return h.mapSessionError(c, err)
	}

	h.manager.TouchSession(id)

	return c.JSON(http.StatusOK, stats)
}

// HandleHealthReport computes the battery-health assessment of a completed
// session. Parameters default from the server configuration and may be
// overridden per request; nothing is cached between calls.
func (h *AnalysisHandlerImpl) HandleHealthReport(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	params, err := h.healthParams(c)
	if err != nil {
		return err
	}

	report, err := h.manager.ComputeHealth(id, params, h.catalog.Current())
	if err != nil {
		return h.mapSessionError(c, err)
	}

	h.manager.TouchSession(id)

	return c.JSON(http.StatusOK, report)
}

// Request/Response types

type startAnalysisRequest struct {
	FileID          string   `json:"fileId"`
	FileIDs         []string `json:"fileIds"`
	DropFirstSample *bool    `json:"dropFirstSample"`
}

func (r *startAnalysisRequest) normalizeFileIDs() []string {
	if len(r.FileIDs) > 0 {
		return r.FileIDs
	}
	if r.FileID != "" {
		return []string{r.FileID}
	}
	return nil
}

type seriesResponse struct {
	Metric   string          `json:"metric"`
	Total    int             `json:"total"`
	Returned int             `json:"returned"`
	Samples  []models.Sample `json:"samples"`
}

// Helper methods

func (h *AnalysisHandlerImpl) resolveFilePaths(fileIDs []string) ([]string, []string, error) {
	var filePaths []string
	var validFileIDs []string

	for _, fid := range fileIDs {
		info, err := h.store.Get(fid)
		if err != nil {
			return nil, nil, NewNotFoundError("file", fid)
		}

		path, err := h.store.GetFilePath(fid)
		if err != nil {
			return nil, nil, NewInternalError("failed to get file path", err)
		}

		validFileIDs = append(validFileIDs, info.ID)
		filePaths = append(filePaths, path)
	}

	return filePaths, validFileIDs, nil
}

func (h *AnalysisHandlerImpl) seriesParams(c echo.Context) (id, metric string, err error) {
	id = c.Param("sessionId")
	if id == "" {
		return "", "", NewValidationError("sessionId")
	}
	metric = c.Param("metric")
	if metric == "" {
		return "", "", NewValidationError("metric")
	}
	return id, metric, nil
}

// maxSeriesPoints caps downsampling resolution; charts never need more.
const maxSeriesPoints = 20000

func (h *AnalysisHandlerImpl) windowParams(c echo.Context) (from, to time.Time, points int, err error) {
	if s := c.QueryParam("from"); s != "" {
		from, err = parseInstant(s)
		if err != nil {
			return from, to, 0, NewBadRequestError("invalid from time", err)
		}
	}
	if s := c.QueryParam("to"); s != "" {
		to, err = parseInstant(s)
		if err != nil {
			return from, to, 0, NewBadRequestError("invalid to time", err)
		}
	}
	if s := c.QueryParam("points"); s != "" {
		points, err = strconv.Atoi(s)
		if err != nil || points < 0 {
			return from, to, 0, NewBadRequestError("invalid points", err)
		}
		if points > maxSeriesPoints {
			points = maxSeriesPoints
		}
	}
	return from, to, points, nil
}

func (h *AnalysisHandlerImpl) healthParams(c echo.Context) (battery.Params, error) {
	params := h.defaults

	if s := c.QueryParam("fullChargeVoltage"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v <= 0 {
			return params, NewBadRequestError("invalid fullChargeVoltage", err)
		}
		params.FullChargeVoltage = v
	}
	if s := c.QueryParam("strategy"); s != "" {
		strategy, err := battery.ParseStrategy(s)
		if err != nil {
			return params, NewBadRequestError("invalid strategy", err)
		}
		params.Strategy = strategy
	}
	if s := c.QueryParam("nominalCapacity"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return params, NewBadRequestError("invalid nominalCapacity", err)
		}
		params.NominalCapacityAh = v
	}
	if s := c.QueryParam("t1"); s != "" {
		t, err := parseInstant(s)
		if err != nil {
			return params, NewBadRequestError("invalid t1", err)
		}
		params.WindowStart = t
	}
	if s := c.QueryParam("t2"); s != "" {
		t, err := parseInstant(s)
		if err != nil {
			return params, NewBadRequestError("invalid t2", err)
		}
		params.WindowEnd = t
	}

	return params, nil
}

// mapSessionError converts session and battery lookup failures into the
// API error taxonomy.
func (h *AnalysisHandlerImpl) mapSessionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return NewNotFoundError("session", c.Param("sessionId"))
	case errors.Is(err, session.ErrSessionNotReady):
		return NewConflictError("analysis is not complete yet")
	case errors.Is(err, session.ErrMetricNotFound):
		return NewNotFoundError("metric", c.Param("metric"))
	case errors.Is(err, battery.ErrNoVoltageData):
		return NewUnprocessableError("NO_DATA", "document has no battery voltage series", err)
	}
	return NewInternalError("analysis query failed", err)
}

func (h *AnalysisHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *AnalysisHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

// parseInstant accepts either a Unix-millisecond integer or an export
// timestamp spelling, always yielding a UTC instant.
func parseInstant(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return parser.ParseTimestamp(s)
}
