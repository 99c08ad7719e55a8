// handlers_catalog.go - Metric catalog operation handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/parser"
	"github.com/batteryview/backend/internal/storage"
)

// CatalogHandlerImpl implements the CatalogHandler interface. The active
// catalog is shared with the health-report path, so swaps are guarded.
type CatalogHandlerImpl struct {
	store storage.Store

	mu        sync.RWMutex
	current   *models.MetricCatalog
	currentID string
}

// NewCatalogHandler creates a catalog handler seeded with the built-in
// metric catalog
func NewCatalogHandler(store storage.Store) *CatalogHandlerImpl {
	return &CatalogHandlerImpl{
		store:   store,
		current: models.DefaultCatalog(),
	}
}

// Current returns the active catalog
func (h *CatalogHandlerImpl) Current() *models.MetricCatalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// SetCurrent swaps the active catalog (used by the WebSocket upload path)
func (h *CatalogHandlerImpl) SetCurrent(catalogID string, catalog *models.MetricCatalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentID = catalogID
	h.current = catalog
}

// HandleGetCatalog returns the currently active metric catalog
func (h *CatalogHandlerImpl) HandleGetCatalog(c echo.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	catalogID := h.currentID
	if catalogID == "" {
		catalogID = "default"
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"catalogId": catalogID,
		"catalog":   h.current,
	})
}

// HandleUploadCatalog uploads and activates a new metric catalog
func (h *CatalogHandlerImpl) HandleUploadCatalog(c echo.Context) error {
	var req uploadCatalogRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 content
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	// Validate before activating; a broken catalog must not replace a
	// working one
	catalog, err := parser.ParseCatalogFromReader(bytes.NewReader(decoded))
	if err != nil {
		return NewBadRequestError("invalid catalog YAML", err)
	}

	// Save catalog file
	info, err := h.store.SaveBytes(req.Name, decoded)
	if err != nil {
		return NewInternalError("failed to save catalog file", err)
	}

	h.SetCurrent(info.ID, catalog)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"catalogId": info.ID,
		"name":      info.Name,
		"metrics":   len(catalog.Metrics),
	})
}

// Request types

type uploadCatalogRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64 encoded YAML
}

func (r *uploadCatalogRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}
