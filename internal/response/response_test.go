package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, reqID string, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRequestID_ReusesClientHeader(t *testing.T) {
	w, body := serve(t, "trace-123", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"ok": true}) })

	assert.Equal(t, "trace-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-123", body.Metadata.RequestID)
	assert.NotEmpty(t, body.Metadata.Timestamp)
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	w, body := serve(t, strings.Repeat("a", 65), func(c *gin.Context) { Success(c, http.StatusOK, nil) })

	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, w.Header().Get("X-Request-ID"), body.Metadata.RequestID)
}

func TestFailWithFields(t *testing.T) {
	w, body := serve(t, "", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"profession": "required"})
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrValidation, body.Error.Code)
	assert.Equal(t, GetMessage(ErrValidation), body.Error.Message)
	assert.Equal(t, "required", body.Error.Fields["profession"])
	assert.Nil(t, body.Data)
}

func TestGetMessage_Unknown(t *testing.T) {
	assert.Equal(t, "An unexpected error occurred.", GetMessage("NOPE"))
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 41, p.TotalItems)

	assert.Zero(t, NewPagination(1, 0, 10).TotalPages)
}
