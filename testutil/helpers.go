package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds TestContext.
const DefaultTimeout = 30 * time.Second

// TestContext 返回随测试结束取消的上下文；可选参数覆盖 DefaultTimeout
func TestContext(t testing.TB, timeout ...time.Duration) context.Context {
	d := DefaultTimeout
	if len(timeout) > 0 {
		d = timeout[0]
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

// AssertEventuallyTrue polls cond every 10ms until it holds or timeout elapses.
func AssertEventuallyTrue(t testing.TB, cond func() bool, timeout time.Duration, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Eventually(t, cond, timeout, 10*time.Millisecond, msgAndArgs...)
}

// DoJSON 发送请求并返回状态码与响应体。body 为 string 时原样发送，
// 其它非 nil 值先编码为 JSON。
func DoJSON(t testing.TB, client *http.Client, method, url string, body any) (int, []byte) {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

// DecodeData 解出 API 响应信封 {"success":..,"data":..} 中的 data 字段
func DecodeData[T any](t testing.TB, body []byte) T {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	require.True(t, env.Success, "response is not a success envelope: %s", body)

	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}
