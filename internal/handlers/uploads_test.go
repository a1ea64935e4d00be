package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func setupUploadRouter(handler *UploadHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser("u1"))
	r.POST("/messages/upload", handler.Upload)
	return r
}

func TestUploadStoresFile(t *testing.T) {
	dir := t.TempDir()
	router := setupUploadRouter(NewUploadHandler(dir, 1024, "http://files.local/", nil))

	body, contentType := multipartBody(t, "file", "../../quote v2.pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/messages/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		FileURL  string `json:"fileUrl"`
		FileName string `json:"fileName"`
		Size     int64  `json:"size"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, strings.HasPrefix(resp.FileURL, "http://files.local/uploads/"))
	assert.True(t, strings.HasSuffix(resp.FileURL, "_quote_v2.pdf"))
	assert.Equal(t, int64(8), resp.Size)

	stored := filepath.Join(dir, strings.TrimPrefix(resp.FileURL, "http://files.local/uploads/"))
	data, err := os.ReadFile(stored)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestUploadRejectsLargeFile(t *testing.T) {
	router := setupUploadRouter(NewUploadHandler(t.TempDir(), 4, "", nil))

	body, contentType := multipartBody(t, "file", "big.bin", []byte("0123456789"))
	req := httptest.NewRequest(http.MethodPost, "/messages/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestUploadRequiresFile(t *testing.T) {
	router := setupUploadRouter(NewUploadHandler(t.TempDir(), 1024, "", nil))

	body, contentType := multipartBody(t, "other", "a.txt", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/messages/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSanitizeFileName(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFileName("../../etc/passwd"))
	assert.Equal(t, "a_b.txt", sanitizeFileName("a b.txt"))
	assert.Equal(t, "evil.exe", sanitizeFileName(`C:\temp\evil.exe`))
	assert.Equal(t, "file", sanitizeFileName(".."))
}
