package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"cdk-license-server/internal/crypto"
	"cdk-license-server/internal/database"
	"cdk-license-server/internal/middleware"
	"cdk-license-server/internal/model"
	"cdk-license-server/internal/service"
	"cdk-license-server/internal/util"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testHMACKey = "9c5f66da591ea9f793959ec358abe1c14989d13642dcd92272e9f02a9811993e"
	testAESKey  = "bcfd1f8dd31c6917b714b38dbf5c87e533831f1c151320a3b172ad082041b072"
)

// newTestApp 按main.go的方式组装完整应用，防重放守卫留空
func newTestApp(t *testing.T) *fiber.App {
	database.InitTestDB()
	t.Cleanup(database.CleanTestDB)

	util.InitJWT(testHMACKey)
	codec := crypto.NewSignatureCodec(testHMACKey)
	testSealer, err := crypto.NewSealer(testAESKey, codec)
	require.NoError(t, err)

	Init(service.NewCDKService(database.DB), testSealer, testHMACKey, nil)

	app := fiber.New()
	protocol := middleware.Protocol(codec, nil)

	api := app.Group("/api")
	api.Get("/status", HandleStatus)
	api.Post("/activate", protocol, HandleActivate)
	api.Post("/get_points", protocol, HandleGetPoints)
	api.Post("/get_settings", protocol, HandleGetSettings)
	api.Post("/consume_points", protocol, HandleConsumePoints)
	api.Post("/toggle_magic_free_mode", protocol, HandleToggleMagicFree)
	api.Post("/get_max_config", protocol, HandleGetMaxConfig)
	api.Post("/unbind_device", protocol, HandleUnbindDevice)
	api.Post("/get_code", protocol, HandleGetCode)

	admin := api.Group("/admin")
	admin.Post("/login", HandleAdminLogin)
	adminProtected := admin.Group("/", middleware.Auth(), middleware.AdminOnly())
	adminProtected.Get("/cdks", HandleAdminListCDKs)
	adminProtected.Post("/cdks/generate", HandleAdminGenerateCDKs)
	adminProtected.Put("/cdks/:code", HandleAdminUpdateCDK)
	adminProtected.Get("/logs", HandleAdminLogs)

	return app
}

// signedBody 按客户端方式签名并序列化请求体，对象值按 "[object Object]" 参与签名
func signedBody(t *testing.T, params map[string]interface{}) []byte {
	codec := crypto.NewSignatureCodec(testHMACKey)

	body := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		body[k] = v
	}
	body["timestamp"] = json.Number(strconv.FormatInt(time.Now().UnixMilli(), 10))
	body["sign"] = codec.SignValues(body)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func doPost(t *testing.T, app *fiber.App, path string, body []byte, headers map[string]string) *http.Response {
	req, err := http.NewRequest("POST", path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	var result map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

// openEnvelope 解析并解密加密响应信封，同时校验信封签名
func openEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	var env crypto.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	codec := crypto.NewSignatureCodec(testHMACKey)
	assert.Equal(t, codec.SignEnvelope(env.Encrypted, env.IV, env.Nonce, env.Timestamp), env.Sign,
		"信封签名必须可被客户端验证")

	testSealer, err := crypto.NewSealer(testAESKey, codec)
	require.NoError(t, err)
	plain, err := testSealer.Open(env.Encrypted, env.IV)
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(plain, &data))
	return data
}

func TestHandleActivate(t *testing.T) {
	app := newTestApp(t)
	database.DB.Create(&model.CDK{
		CdkCode:   "WEEKPRO-AB12-CD34-EF56",
		CdkType:   "WEEKPRO",
		Status:    model.StatusUnused,
		CreatedAt: time.Now(),
	})

	resp := doPost(t, app, "/api/activate", signedBody(t, map[string]interface{}{
		"cdk":         "WEEKPRO-AB12-CD34-EF56",
		"device_code": "dev-1",
		"author_id":   "author-1",
		"version":     "1.2.3",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	data := openEnvelope(t, resp)
	assert.Equal(t, "WEEKPRO-AB12-CD34-EF56", data["cdk"])
	assert.Equal(t, float64(1), data["boundDevices"])
	assert.Contains(t, data, "access_token")
	assert.Contains(t, data, "activatedAt")
}

func TestHandleActivateAlreadyUsed(t *testing.T) {
	app := newTestApp(t)
	database.DB.Create(&model.CDK{
		CdkCode:   "DAY-AAAA-BBBB-CCCC",
		CdkType:   "DAY",
		Status:    model.StatusUnused,
		CreatedAt: time.Now(),
	})

	params := map[string]interface{}{"cdk": "DAY-AAAA-BBBB-CCCC", "device_code": "dev-1", "author_id": "a1"}
	resp := doPost(t, app, "/api/activate", signedBody(t, params), nil)
	require.Equal(t, 200, resp.StatusCode)

	resp = doPost(t, app, "/api/activate", signedBody(t, params), nil)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "激活码已被使用", decodeJSON(t, resp)["message"])
}

func TestHandleGetPoints(t *testing.T) {
	app := newTestApp(t)
	database.DB.Create(&model.CDK{
		CdkCode:   "WEEKPRO-AB12-CD34-EF56",
		CdkType:   "WEEKPRO",
		Status:    model.StatusUnused,
		CreatedAt: time.Now(),
	})

	resp := doPost(t, app, "/api/activate", signedBody(t, map[string]interface{}{
		"cdk": "WEEKPRO-AB12-CD34-EF56", "device_code": "dev-1", "author_id": "a1",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	resp = doPost(t, app, "/api/get_points", signedBody(t, map[string]interface{}{
		"cdk": "WEEKPRO-AB12-CD34-EF56",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	data := openEnvelope(t, resp)
	assert.Equal(t, float64(3500), data["points"])
	assert.Contains(t, data, "nonce")
}

func TestHandleConsumePoints(t *testing.T) {
	app := newTestApp(t)
	database.DB.Create(&model.CDK{
		CdkCode:   "DAY-AAAA-BBBB-CCCC",
		CdkType:   "DAY",
		Status:    model.StatusUnused,
		CreatedAt: time.Now(),
	})
	doPost(t, app, "/api/activate", signedBody(t, map[string]interface{}{
		"cdk": "DAY-AAAA-BBBB-CCCC", "device_code": "dev-1", "author_id": "a1",
	}), nil)

	resp := doPost(t, app, "/api/consume_points", signedBody(t, map[string]interface{}{
		"cdk": "DAY-AAAA-BBBB-CCCC", "operation": "account_switch",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	result := decodeJSON(t, resp)
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, float64(400), data["remaining"])
}

func TestHandleGetMaxConfig(t *testing.T) {
	app := newTestApp(t)

	// 周卡无MAX权限
	resp := doPost(t, app, "/api/get_max_config", signedBody(t, map[string]interface{}{
		"cdk": "WEEK-AAAA-BBBB-CCCC",
	}), nil)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "🤖MAX模型 | 仅对【月/季/年卡】用户开放", decodeJSON(t, resp)["message"])

	// 月卡放行
	resp = doPost(t, app, "/api/get_max_config", signedBody(t, map[string]interface{}{
		"cdk": "MONTH-AAAA-BBBB-CCCC",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	result := decodeJSON(t, resp)
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, true, data["max_enabled"])
	assert.Contains(t, data["max_models"], "claude-4-max")
}

func TestHandleToggleMagicFree(t *testing.T) {
	app := newTestApp(t)

	// 非Pro版拒绝
	resp := doPost(t, app, "/api/toggle_magic_free_mode", signedBody(t, map[string]interface{}{
		"cdk": "DAY-AAAA-BBBB-CCCC", "enabled": json.Number("1"),
	}), nil)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "🤖免魔法功能 | 仅对【Pro版】用户开放", decodeJSON(t, resp)["message"])

	// Pro版开启
	resp = doPost(t, app, "/api/toggle_magic_free_mode", signedBody(t, map[string]interface{}{
		"cdk": "DAYPRO-AAAA-BBBB-CCCC", "enabled": json.Number("1"),
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	result := decodeJSON(t, resp)
	data, _ := result["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["enabled"])
}

func TestHandleUnbindDevice(t *testing.T) {
	app := newTestApp(t)
	database.DB.Create(&model.CDK{
		CdkCode:   "WEEK-AAAA-BBBB-CCCC",
		CdkType:   "WEEK",
		Status:    model.StatusUnused,
		CreatedAt: time.Now(),
	})
	doPost(t, app, "/api/activate", signedBody(t, map[string]interface{}{
		"cdk": "WEEK-AAAA-BBBB-CCCC", "device_code": "dev-1", "author_id": "a1",
	}), nil)

	resp := doPost(t, app, "/api/unbind_device", signedBody(t, map[string]interface{}{
		"cdk": "WEEK-AAAA-BBBB-CCCC", "device_code": "dev-1",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "解绑成功", decodeJSON(t, resp)["message"])

	// 未绑定的设备返回404
	resp = doPost(t, app, "/api/unbind_device", signedBody(t, map[string]interface{}{
		"cdk": "WEEK-AAAA-BBBB-CCCC", "device_code": "dev-9",
	}), nil)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandleGetSettings(t *testing.T) {
	app := newTestApp(t)

	resp := doPost(t, app, "/api/get_settings", signedBody(t, map[string]interface{}{
		"cdk": "DAY-AAAA-BBBB-CCCC",
	}), nil)
	require.Equal(t, 200, resp.StatusCode)

	data := openEnvelope(t, resp)
	assert.Equal(t, true, data["magic_free_enabled"])
	assert.Contains(t, data, "buy_url")
}

func TestHandleGetCode(t *testing.T) {
	app := newTestApp(t)

	// 哈希全部匹配
	resp := doPost(t, app, "/api/get_code", signedBody(t, map[string]interface{}{
		"version": "1.2.3",
		"client_hashes": map[string]interface{}{
			"f1": "b22e5d9793a4bd03f1fd57505d724678",
			"f2": "0f681632e34ec3e7bea0cc2d1d68c1da",
			"f3": "7ff83f5883d6a86438d4df4b1277a14b",
			"f4": "4fd7ee5c7a2c37a537ec14f8cf5dec7b",
		},
	}), nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "获取成功", decodeJSON(t, resp)["message"])

	// 任一哈希不匹配要求更新
	resp = doPost(t, app, "/api/get_code", signedBody(t, map[string]interface{}{
		"version": "1.2.3",
		"client_hashes": map[string]interface{}{
			"f1": "0000000000000000000000000000dead",
		},
	}), nil)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "需要更新文件", decodeJSON(t, resp)["message"])
}

func TestRandomTokenSegments(t *testing.T) {
	s, err := randomBase36(40)
	require.NoError(t, err)
	assert.Len(t, s, 40)
	for _, ch := range s {
		assert.Contains(t, base36Chars, string(ch))
	}

	h, err := randomHex(64)
	require.NoError(t, err)
	assert.Len(t, h, 64)
	for _, ch := range h {
		assert.Contains(t, hexChars, string(ch))
	}

	// 同一长度两次生成不应相同
	s2, err := randomBase36(40)
	require.NoError(t, err)
	assert.NotEqual(t, s, s2)
}

func TestHandleStatus(t *testing.T) {
	app := newTestApp(t)

	req, _ := http.NewRequest("GET", "/api/status", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	result := decodeJSON(t, resp)
	assert.Equal(t, "OK", result["status"])
}
