package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"cdk-license-server/internal/crypto"
	"cdk-license-server/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHMACKey = "9c5f66da591ea9f793959ec358abe1c14989d13642dcd92272e9f02a9811993e"

// memReplayCache 内存版SETNX，避免测试依赖真实Redis
type memReplayCache struct {
	seen map[string]bool
}

func (m *memReplayCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if m.seen[key] {
		return redis.NewBoolResult(false, nil)
	}
	m.seen[key] = true
	return redis.NewBoolResult(true, nil)
}

func newProtocolApp(guard *service.ReplayGuard) *fiber.App {
	codec := crypto.NewSignatureCodec(testHMACKey)
	app := fiber.New()
	app.Post("/api/test", Protocol(codec, guard), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"cdk": ParamString(c, "cdk")})
	})
	return app
}

// signedBody 按客户端方式构造带签名的请求体
func signedBody(t *testing.T, params map[string]string, tsMs int64) []byte {
	codec := crypto.NewSignatureCodec(testHMACKey)

	signParams := make(map[string]string, len(params)+1)
	for k, v := range params {
		signParams[k] = v
	}
	signParams["timestamp"] = strconv.FormatInt(tsMs, 10)
	sign := codec.Sign(signParams)

	body := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["timestamp"] = json.Number(strconv.FormatInt(tsMs, 10))
	body["sign"] = sign

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func postJSON(t *testing.T, app *fiber.App, body []byte) *http.Response {
	req, err := http.NewRequest("POST", "/api/test", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestProtocolAcceptsValidRequest(t *testing.T) {
	app := newProtocolApp(nil)

	body := signedBody(t, map[string]string{"cdk": "DAY-1111-2222-3333"}, time.Now().UnixMilli())
	resp := postJSON(t, app, body)
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "DAY-1111-2222-3333", result["cdk"])
}

func TestProtocolFreshnessWindow(t *testing.T) {
	app := newProtocolApp(nil)

	tests := []struct {
		name     string
		offsetMs int64
		want     int
	}{
		{"at_window_edge_past", -FreshnessWindow + 500, 200},
		{"at_window_edge_future", FreshnessWindow, 200},
		{"beyond_window_past", -FreshnessWindow - 5000, 400},
		{"beyond_window_future", FreshnessWindow + 5000, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := time.Now().UnixMilli() + tt.offsetMs
			resp := postJSON(t, app, signedBody(t, map[string]string{"cdk": "DAY-1111-2222-3333"}, ts))
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

// 边界值直接打在纯函数上，不受请求往返耗时影响
func TestTimestampFreshBoundary(t *testing.T) {
	now := int64(1700000000000)

	tests := []struct {
		name   string
		offset int64
		want   bool
	}{
		{"exact_now", 0, true},
		{"exactly_window_past", -FreshnessWindow, true},
		{"exactly_window_future", FreshnessWindow, true},
		{"one_ms_beyond_past", -FreshnessWindow - 1, false},
		{"one_ms_beyond_future", FreshnessWindow + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, timestampFresh(now+tt.offset, now))
		})
	}
}

func TestProtocolRejectsBadSignature(t *testing.T) {
	app := newProtocolApp(nil)

	body := signedBody(t, map[string]string{"cdk": "DAY-1111-2222-3333"}, time.Now().UnixMilli())

	// 篡改业务字段但保留原签名
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	decoded["cdk"] = "DAY-1111-2222-3334"
	tampered, _ := json.Marshal(decoded)

	resp := postJSON(t, app, tampered)
	assert.Equal(t, 403, resp.StatusCode)

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "签名验证失败，拒绝访问", result["message"])
}

func TestProtocolRejectsMissingTimestamp(t *testing.T) {
	app := newProtocolApp(nil)

	codec := crypto.NewSignatureCodec(testHMACKey)
	sign := codec.Sign(map[string]string{"cdk": "DAY-1111-2222-3333"})
	body, _ := json.Marshal(map[string]interface{}{"cdk": "DAY-1111-2222-3333", "sign": sign})

	resp := postJSON(t, app, body)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestProtocolRejectsMalformedBody(t *testing.T) {
	app := newProtocolApp(nil)

	resp := postJSON(t, app, []byte("not json at all"))
	assert.Equal(t, 400, resp.StatusCode)

	// 解不开的请求体按格式错误报，而不是时间戳错误
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "请求数据格式错误", result["message"])
}

func TestProtocolReplayRejected(t *testing.T) {
	guard := service.NewReplayGuard(&memReplayCache{seen: make(map[string]bool)})
	app := newProtocolApp(guard)

	body := signedBody(t, map[string]string{"cdk": "DAY-1111-2222-3333"}, time.Now().UnixMilli())

	resp := postJSON(t, app, body)
	assert.Equal(t, 200, resp.StatusCode, "首次请求应放行")

	resp = postJSON(t, app, body)
	assert.Equal(t, 403, resp.StatusCode, "相同签名重放应拒绝")

	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "签名已被使用，拒绝重放请求", result["message"])
}
