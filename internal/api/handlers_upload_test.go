// handlers_upload_test.go - Tests for export document upload handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/batteryview/backend/internal/models"
	"github.com/batteryview/backend/internal/testutil"
	"github.com/batteryview/backend/internal/upload"
)

func newUploadTestHandler(store *testutil.MockStorage, manager *MockAnalysisManager, allowDelete bool, allowedTypes string) UploadHandler {
	return NewUploadHandler(store, manager, upload.NewManager(store), allowDelete, allowedTypes)
}

func TestUploadFileHandler(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := newUploadTestHandler(store, NewMockAnalysisManager(), true, "")

	// 1. Base64 JSON upload
	body, _ := json.Marshal(uploadFileRequest{
		Name: "export.json",
		Data: base64.StdEncoding.EncodeToString(validExportDoc),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleUploadFile(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)

		var info models.FileInfo
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.NotEmpty(t, info.ID)
		assert.Equal(t, "export.json", info.Name)
		assert.Equal(t, int64(len(validExportDoc)), info.Size)

		stored, err := store.GetFileData(info.ID)
		assert.NoError(t, err)
		assert.Equal(t, validExportDoc, stored)
	}

	// 2. Bad base64 payload
	body, _ = json.Marshal(uploadFileRequest{Name: "export.json", Data: "%%%"})
	req = httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	err := h.HandleUploadFile(c)
	if assert.Error(t, err) {
		assert.Equal(t, http.StatusBadRequest, err.(*APIError).Status)
	}

	// 3. Missing name
	body, _ = json.Marshal(uploadFileRequest{Data: "aGk="})
	req = httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c = e.NewContext(req, httptest.NewRecorder())
	err = h.HandleUploadFile(c)
	if assert.Error(t, err) {
		assert.Equal(t, "VALIDATION_ERROR", err.(*APIError).Code)
	}
}

func TestUploadFileTypeWhitelist(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := newUploadTestHandler(store, NewMockAnalysisManager(), true, ".json,.gz")

	send := func(name string) error {
		body, _ := json.Marshal(uploadFileRequest{
			Name: name,
			Data: base64.StdEncoding.EncodeToString([]byte("data")),
		})
		req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		return h.HandleUploadFile(e.NewContext(req, httptest.NewRecorder()))
	}

	assert.NoError(t, send("export.json"))
	assert.NoError(t, send("export.JSON")) // extension match is case-insensitive
	assert.NoError(t, send("export.json.gz"))

	err := send("export.exe")
	if assert.Error(t, err) {
		apiErr := err.(*APIError)
		assert.Equal(t, http.StatusBadRequest, apiErr.Status)
		assert.Contains(t, apiErr.Message, "not allowed")
	}
	assert.Error(t, send("noextension"))
}

func TestUploadBinaryHandler(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := newUploadTestHandler(store, NewMockAnalysisManager(), true, ".json")

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "export.json")
	part.Write(validExportDoc)
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/upload/binary", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if assert.NoError(t, h.HandleUploadBinary(c)) {
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, 1, store.GetFileCount())
	}

	// Whitelist applies to multipart uploads too
	body = new(bytes.Buffer)
	writer = multipart.NewWriter(body)
	part, _ = writer.CreateFormFile("file", "export.zip")
	part.Write([]byte("zip"))
	writer.Close()

	req = httptest.NewRequest(http.MethodPost, "/api/upload/binary", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	c = e.NewContext(req, httptest.NewRecorder())
	assert.Error(t, h.HandleUploadBinary(c))
}

func TestChunkedUploadFlow(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	h := newUploadTestHandler(store, NewMockAnalysisManager(), true, "")

	uploadID := "upload-42"
	chunks := [][]byte{[]byte(`[{"Logs":[`), []byte(`]}]`)}

	// 1. Send both chunks
	for i, chunk := range chunks {
		body, _ := json.Marshal(uploadChunkRequest{
			UploadID:   uploadID,
			ChunkIndex: i,
			Data:       base64.StdEncoding.EncodeToString(chunk),
		})
		req := httptest.NewRequest(http.MethodPost, "/api/upload/chunk", bytes.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if assert.NoError(t, h.HandleUploadChunk(c)) {
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}
	}

	// 2. Complete starts an async assembly job
	body, _ := json.Marshal(completeUploadRequest{
		UploadID:    uploadID,
		Name:        "export.json",
		TotalChunks: len(chunks),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/complete", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if !assert.NoError(t, h.HandleCompleteUpload(c)) {
		return
	}
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	jobID, _ := accepted["jobId"].(string)
	assert.NotEmpty(t, jobID)

	// 3. Poll the job until the background assembly finishes
	var job upload.Job
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req = httptest.NewRequest(http.MethodGet, "/api/upload/jobs/"+jobID, nil)
		rec = httptest.NewRecorder()
		c = e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(jobID)
		if !assert.NoError(t, h.HandleGetUploadJob(c)) {
			return
		}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		if job.Status == upload.StatusComplete || job.Status == upload.StatusError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, upload.StatusComplete, job.Status)
	if assert.NotNil(t, job.FileInfo) {
		stored, err := store.GetFileData(job.FileInfo.ID)
		assert.NoError(t, err)
		assert.Equal(t, []byte(`[{"Logs":[]}]`), stored)
	}

	// 4. Unknown job IDs are a 404
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/upload/jobs/nope", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	err := h.HandleGetUploadJob(c)
	if assert.Error(t, err) {
		assert.Equal(t, http.StatusNotFound, err.(*APIError).Status)
	}
}

func TestDeleteFileGate(t *testing.T) {
	e := echo.New()

	// Deletion disabled by configuration
	store := testutil.NewMockStorage()
	store.AddFile("file-1", "export.json", validExportDoc)
	manager := NewMockAnalysisManager()
	h := newUploadTestHandler(store, manager, false, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/files/file-1", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("file-1")
	err := h.HandleDeleteFile(c)
	if assert.Error(t, err) {
		assert.Equal(t, http.StatusConflict, err.(*APIError).Status)
	}
	assert.Equal(t, 1, store.GetFileCount())
	assert.Empty(t, manager.deletedFiles)

	// Deletion enabled removes the file and its parsed data
	h = newUploadTestHandler(store, manager, true, "")
	rec := httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("file-1")
	if assert.NoError(t, h.HandleDeleteFile(c)) {
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
	assert.Equal(t, 0, store.GetFileCount())
	assert.Equal(t, []string{"file-1"}, manager.deletedFiles)
}

func TestRenameAndListFiles(t *testing.T) {
	e := echo.New()
	store := testutil.NewMockStorage()
	store.AddFile("file-1", "export.json", validExportDoc)
	store.AddFile("file-2", "catalog.yaml", []byte("metrics: []"))
	h := newUploadTestHandler(store, NewMockAnalysisManager(), true, "")

	// 1. Rename
	body, _ := json.Marshal(renameFileRequest{Name: "october.json"})
	req := httptest.NewRequest(http.MethodPut, "/api/files/file-1/name", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("file-1")
	if assert.NoError(t, h.HandleRenameFile(c)) {
		var info models.FileInfo
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		assert.Equal(t, "october.json", info.Name)
	}

	// 2. Catalog files never show up in the export listing
	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if assert.NoError(t, h.HandleGetRecentFiles(c)) {
		var files []*models.FileInfo
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
		if assert.Len(t, files, 1) {
			assert.Equal(t, "october.json", files[0].Name)
		}
	}

	// 3. Fetch single file metadata
	req = httptest.NewRequest(http.MethodGet, "/api/files/file-2", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("file-2")
	if assert.NoError(t, h.HandleGetFile(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "catalog.yaml")
	}
}
