package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentkernel/agent/persistence"
	"github.com/BaSui01/agentkernel/internal/ctxkeys"
	"github.com/BaSui01/agentkernel/types"
)

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, map[string]string{"k": "v"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"k":"v"}`, w.Body.String())
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]int{"facts": 3})

	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteSuccessStatus_RequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(ctxkeys.WithRequestID(r.Context(), "req-42"))

	writeSuccessStatus(w, r, http.StatusCreated, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "req-42", decodeResponse(t, w).RequestID)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        *types.Error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "bad"), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown strategy", types.NewError(types.ErrUnknownStrategy, "nope"), http.StatusBadRequest, "UNKNOWN_STRATEGY"},
		{"not found", types.NewError(types.ErrNotFound, "gone"), http.StatusNotFound, "NOT_FOUND"},
		{"kernel closed", types.NewError(types.ErrKernelClosed, "closed"), http.StatusServiceUnavailable, "KERNEL_CLOSED"},
		{"explicit status wins", types.NewError(types.ErrInternalError, "x").WithHTTPStatus(http.StatusTeapot), http.StatusTeapot, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.err.Message, resp.Error.Message)
		})
	}
}

func TestWriteError_CauseAndRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	err := types.NewError(types.ErrStoreUnavailable, "redis down").
		WithCause(errors.New("dial tcp: refused")).
		WithRetryable(true)
	WriteError(w, err, nil)

	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "dial tcp: refused", resp.Error.Details)
	assert.True(t, resp.Error.Retryable)
}

func TestWriteErrorMessage(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorMessage(w, http.StatusForbidden, types.ErrForbidden, "no", zap.NewNop())

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeResponse(t, w).Error.Code)
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{"typed passthrough", types.NewError(types.ErrPlanNotFound, "x"), types.ErrPlanNotFound},
		{"wrapped typed", fmt.Errorf("outer: %w", types.NewError(types.ErrActionFailed, "x")), types.ErrActionFailed},
		{"deadline", context.DeadlineExceeded, types.ErrTimeout},
		{"canceled", context.Canceled, types.ErrTimeout},
		{"store not found", fmt.Errorf("load a: %w", persistence.ErrNotFound), types.ErrNotFound},
		{"store invalid", persistence.ValidateID("../etc"), types.ErrInvalidRequest},
		{"store corrupted", fmt.Errorf("%w: bad json", persistence.ErrCorrupted), types.ErrSnapshotCorrupted},
		{"store closed", persistence.ErrStoreClosed, types.ErrStoreUnavailable},
		{"other", errors.New("boom"), types.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toAPIError(tt.err)
			assert.Equal(t, tt.want, got.Code)
		})
	}
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnknownStrategy, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrPlanNotFound, http.StatusUnprocessableEntity},
		{types.ErrActionFailed, http.StatusUnprocessableEntity},
		{types.ErrSnapshotCorrupted, http.StatusUnprocessableEntity},
		{types.ErrTimeout, http.StatusGatewayTimeout},
		{types.ErrKernelClosed, http.StatusServiceUnavailable},
		{types.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{types.ErrInternalError, http.StatusInternalServerError},
		{types.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Subject string `json:"subject"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
	}{
		{"valid", `{"subject":"socrates"}`, false, http.StatusOK},
		{"invalid json", `{"subject":`, true, http.StatusBadRequest},
		{"unknown field", `{"subject":"a","extra":1}`, true, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst payload
			err := DecodeJSONBody(w, r, &dst, zap.NewNop())
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, w.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "socrates", dst.Subject)
		})
	}
}

func TestDecodeJSONBody_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", http.NoBody)

	var dst map[string]any
	require.Error(t, DecodeJSONBody(w, r, &dst, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	big := `{"subject":"` + strings.Repeat("x", int(DefaultMaxBodyBytes)) + `"}`
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(big))

	var dst map[string]any
	err := DecodeJSONBody(w, r, &dst, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"application/json ;  charset=UTF-8", true},
		{"text/plain", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	assert.Equal(t, http.StatusOK, rw.StatusCode)
	assert.False(t, rw.Written)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK) // 第二次调用被忽略
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, http.StatusNotFound, rw.StatusCode)
	assert.True(t, rw.Written)
	assert.Equal(t, int64(5), rw.BytesWritten)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Same(t, http.ResponseWriter(rec), rw.Unwrap())
}
