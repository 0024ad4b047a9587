package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestContext(t *testing.T) {
	ctx := TestContext(t)
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultTimeout), deadline, time.Second)

	short := TestContext(t, time.Millisecond)
	<-short.Done()
	assert.Error(t, short.Err())
}

func TestAssertEventuallyTrue(t *testing.T) {
	var n atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		n.Store(1)
	}()
	assert.True(t, AssertEventuallyTrue(t, func() bool { return n.Load() == 1 }, time.Second))
}

func echoServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		in, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]string{
				"method":       r.Method,
				"content_type": r.Header.Get("Content-Type"),
				"body":         string(in),
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoJSON(t *testing.T) {
	srv := echoServer(t)

	code, body := DoJSON(t, nil, http.MethodPost, srv.URL, map[string]any{"subject": "socrates"})
	assert.Equal(t, http.StatusCreated, code)
	got := DecodeData[map[string]string](t, body)
	assert.Equal(t, http.MethodPost, got["method"])
	assert.Equal(t, "application/json", got["content_type"])
	assert.JSONEq(t, `{"subject":"socrates"}`, got["body"])

	_, body = DoJSON(t, srv.Client(), http.MethodPut, srv.URL, `{"raw":true}`)
	assert.Equal(t, `{"raw":true}`, DecodeData[map[string]string](t, body)["body"])

	_, body = DoJSON(t, nil, http.MethodGet, srv.URL, nil)
	got = DecodeData[map[string]string](t, body)
	assert.Empty(t, got["content_type"])
	assert.Empty(t, got["body"])
}
