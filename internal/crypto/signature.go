package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// SignatureCodec 请求/响应签名编解码器
// 算法与客户端 extension.js 逐字节一致：键名排序 → URLSearchParams 序列化 → HMAC-SHA256 → 小写hex
type SignatureCodec struct {
	key []byte
}

// NewSignatureCodec 创建签名编解码器
// 注意：客户端把64位hex字符串原样作为HMAC密钥（不做hex解码），这里必须保持一致
func NewSignatureCodec(key string) *SignatureCodec {
	return &SignatureCodec{key: []byte(key)}
}

// Sign 对参数集生成签名
func (c *SignatureCodec) Sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	// 按键名字节序排序，与 Object.keys().sort() 一致
	sort.Strings(keys)

	var buf strings.Builder
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(formEncode(k))
		buf.WriteByte('=')
		buf.WriteString(formEncode(params[k]))
	}

	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(buf.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignValues 对JSON解码后的参数集生成签名，非字符串值按JS ToString规则转换
func (c *SignatureCodec) SignValues(params map[string]interface{}) string {
	strParams := make(map[string]string, len(params))
	for k, v := range params {
		strParams[k] = JSString(v)
	}
	return c.Sign(strParams)
}

// VerifyBody 校验请求体签名：剔除sign字段后重算并做常数时间比较
func (c *SignatureCodec) VerifyBody(body []byte) bool {
	params, sign, err := DecodeSignedBody(body)
	if err != nil || sign == "" {
		return false
	}
	expected := c.SignValues(params)
	return hmac.Equal([]byte(sign), []byte(expected))
}

// SignEnvelope 生成响应信封签名，签名输入为 {encrypted, iv, nonce, timestamp字符串}
func (c *SignatureCodec) SignEnvelope(encrypted, iv, nonce string, timestamp int64) string {
	return c.Sign(map[string]string{
		"encrypted": encrypted,
		"iv":        iv,
		"nonce":     nonce,
		"timestamp": strconv.FormatInt(timestamp, 10),
	})
}

// DecodeSignedBody 解析带签名的JSON请求体，返回去除sign后的参数集与sign本身
// 使用 json.Number 保留数字字面量，保证 timestamp 等字段与客户端序列化完全一致
func DecodeSignedBody(body []byte) (map[string]interface{}, string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var params map[string]interface{}
	if err := dec.Decode(&params); err != nil {
		return nil, "", err
	}

	sign, _ := params["sign"].(string)
	delete(params, "sign")
	return params, sign, nil
}

// JSString 模拟JS的ToString语义（URLSearchParams.set 对值的隐式转换）
func JSString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		if val {
			return "true"
		}
		return "false"
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}:
		// 数组按逗号连接，null元素转为空串
		parts := make([]string, len(val))
		for i, item := range val {
			if item == nil {
				parts[i] = ""
			} else {
				parts[i] = JSString(item)
			}
		}
		return strings.Join(parts, ",")
	case map[string]interface{}:
		// 对象参与签名时客户端实际签的是 "[object Object]"
		return "[object Object]"
	default:
		return ""
	}
}

// formEncode 实现 application/x-www-form-urlencoded 序列化（WHATWG规则）
// 不能用 net/url：Go对 '~' 不转义而客户端转义，对 '*' 转义而客户端保留
func formEncode(s string) string {
	var buf strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == ' ':
			buf.WriteByte('+')
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9',
			ch == '*', ch == '-', ch == '.', ch == '_':
			buf.WriteByte(ch)
		default:
			buf.WriteByte('%')
			buf.WriteByte(upperhex[ch>>4])
			buf.WriteByte(upperhex[ch&0x0f])
		}
	}
	return buf.String()
}

const upperhex = "0123456789ABCDEF"
