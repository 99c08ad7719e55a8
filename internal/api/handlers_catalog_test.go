// handlers_catalog_test.go - Tests for metric catalog handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/testutil"
)

const customCatalogYAML = `default_color: silver
metrics:
  - name: Voltage-Battery
    label: Pack Voltage
    unit: V
    color: crimson
    axis: left
status_bands:
  - max_avg_dod: 40
    status: Excellent
    color: green
  - max_avg_dod: 90
    status: Poor
    color: red
`

func catalogUploadBody(t *testing.T, name, yamlText string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(uploadCatalogRequest{
		Name: name,
		Data: base64.StdEncoding.EncodeToString([]byte(yamlText)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(body)
}

func TestCatalogHandlers(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := NewCatalogHandler(store)

	// 1. Built-in catalog is active by default
	req := httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleGetCatalog(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"catalogId":"default"`)
		assert.Contains(t, rec.Body.String(), "Battery Voltage")
	}

	// 2. Upload a replacement catalog
	req = httptest.NewRequest(http.MethodPost, "/api/catalog", catalogUploadBody(t, "custom.yaml", customCatalogYAML))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleUploadCatalog(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["catalogId"])
		assert.Equal(t, float64(1), resp["metrics"])
	}

	// 3. The replacement is now the active catalog
	assert.Equal(t, "silver", h.Current().DefaultColor)
	assert.Equal(t, "crimson", h.Current().ColorFor("Voltage-Battery"))

	req = httptest.NewRequest(http.MethodGet, "/api/catalog", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleGetCatalog(c)) {
		assert.Contains(t, rec.Body.String(), "Pack Voltage")
		assert.NotContains(t, rec.Body.String(), `"catalogId":"default"`)
	}

	// 4. Status bands arrive sorted for the report path
	bands := h.Current().StatusBands
	if assert.Len(t, bands, 2) {
		assert.Equal(t, models.BatteryStatusExcellent, bands[0].Status)
		assert.Equal(t, models.BatteryStatusPoor, bands[1].Status)
	}
}

func TestCatalogUploadRejectsBrokenInput(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := NewCatalogHandler(store)
	before := h.Current()

	post := func(body *bytes.Buffer) error {
		req := httptest.NewRequest(http.MethodPost, "/api/catalog", body)
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		return h.HandleUploadCatalog(e.NewContext(req, rec))
	}

	// Garbage YAML
	err := post(catalogUploadBody(t, "broken.yaml", "metrics: [unclosed"))
	if assert.Error(t, err) {
		apiErr := err.(*APIError)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	}

	// Structurally invalid: a metric without a name
	err = post(catalogUploadBody(t, "nameless.yaml", "metrics:\n  - label: Orphan\n"))
	assert.Error(t, err)

	// Bad base64
	body, _ := json.Marshal(uploadCatalogRequest{Name: "x.yaml", Data: "!!not-base64!!"})
	err = post(bytes.NewBuffer(body))
	assert.Error(t, err)

	// Missing fields
	body, _ = json.Marshal(uploadCatalogRequest{Data: base64.StdEncoding.EncodeToString([]byte("{}"))})
	err = post(bytes.NewBuffer(body))
	if assert.Error(t, err) {
		assert.Equal(t, "VALIDATION_ERROR", err.(*APIError).Code)
	}

	// A failed upload never replaces the active catalog
	assert.Same(t, before, h.Current())
	assert.Equal(t, 0, store.GetFileCount())
}
