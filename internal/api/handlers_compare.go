// handlers_compare.go - Full-vs-sampled comparison handlers
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/batteryview/backend/internal/battery"
	"github.com/batteryview/backend/internal/parser"
	"github.com/batteryview/backend/internal/storage"
)

// ComparisonHandlerImpl implements the ComparisonHandler interface
type ComparisonHandlerImpl struct {
	store            storage.Store
	manager          AnalysisManager
	registry         *parser.Registry
	defaults         battery.Params
	refVoltage       float64
	dropFirstDefault bool
}

// NewComparisonHandler creates a new comparison handler instance
func NewComparisonHandler(store storage.Store, manager AnalysisManager, defaults battery.Params, refVoltage float64, dropFirstDefault bool) ComparisonHandler {
	if refVoltage <= 0 {
		refVoltage = defaults.FullChargeVoltage
	}
	return &ComparisonHandlerImpl{
		store:            store,
		manager:          manager,
		registry:         parser.GetGlobalRegistry(),
		defaults:         defaults,
		refVoltage:       refVoltage,
		dropFirstDefault: dropFirstDefault,
	}
}

// HandleStartComparison starts a comparison of a full-rate export against
// a sampled export of the same period
func (h *ComparisonHandlerImpl) HandleStartComparison(c echo.Context) error {
	var req startComparisonRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}

	opts := battery.CompareOptions{
		ReferenceVoltage: h.refVoltage,
		Strategy:         h.defaults.Strategy,
	}
	if req.ReferenceVoltage != 0 {
		if req.ReferenceVoltage < 0 {
			return NewValidationError("referenceVoltage")
		}
		opts.ReferenceVoltage = req.ReferenceVoltage
	}
	if req.Strategy != "" {
		strategy, err := battery.ParseStrategy(req.Strategy)
		if err != nil {
			return NewBadRequestError("invalid strategy", err)
		}
		opts.Strategy = strategy
	}
	if len(req.Metrics) > 0 {
		opts.MetricKeys = req.Metrics
	}

	fullPath, err := h.resolvePath(req.FullFileID)
	if err != nil {
		return err
	}
	samplePath, err := h.resolvePath(req.SampleFileID)
	if err != nil {
		return err
	}

	for id, path := range map[string]string{req.FullFileID: fullPath, req.SampleFileID: samplePath} {
		if _, err := h.registry.FindParser(path); err != nil {
			return NewUnprocessableError("INVALID_FORMAT",
				fmt.Sprintf("file %s is not a recognized export document", id), err)
		}
	}

	dropFirst := h.dropFirstDefault
	if req.DropFirstSample != nil {
		dropFirst = *req.DropFirstSample
	}

	parseOpts := parser.Options{DropFirstSample: dropFirst}
	sess, err := h.manager.StartComparison(req.FullFileID, req.SampleFileID, fullPath, samplePath, parseOpts, opts)
	if err != nil {
		return NewInternalError("failed to start comparison", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleComparisonStatus returns progress and, once complete, the full
// comparison result
func (h *ComparisonHandlerImpl) HandleComparisonStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.manager.GetComparison(id)
	if !ok {
		return NewNotFoundError("comparison", id)
	}

	return c.JSON(http.StatusOK, sess)
}

// Request types

type startComparisonRequest struct {
	FullFileID       string   `json:"fullFileId"`
	SampleFileID     string   `json:"sampleFileId"`
	ReferenceVoltage float64  `json:"referenceVoltage"`
	Strategy         string   `json:"strategy"`
	Metrics          []string `json:"metrics"`
	DropFirstSample  *bool    `json:"dropFirstSample"`
}

func (r *startComparisonRequest) validate() error {
	if r.FullFileID == "" {
		return NewValidationError("fullFileId")
	}
	if r.SampleFileID == "" {
		return NewValidationError("sampleFileId")
	}
	return nil
}

func (h *ComparisonHandlerImpl) resolvePath(fileID string) (string, error) {
	if _, err := h.store.Get(fileID); err != nil {
		return "", NewNotFoundError("file", fileID)
	}
	path, err := h.store.GetFilePath(fileID)
	if err != nil {
		return "", NewInternalError("failed to get file path", err)
	}
	return path, nil
}
