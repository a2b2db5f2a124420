package crypto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAESKey = "bcfd1f8dd31c6917b714b38dbf5c87e533831f1c151320a3b172ad082041b072"

func newTestSealer(t *testing.T) *Sealer {
	codec := NewSignatureCodec(testKey)
	sealer, err := NewSealer(testAESKey, codec)
	require.NoError(t, err)
	return sealer
}

func TestNewSealerRejectsBadKey(t *testing.T) {
	codec := NewSignatureCodec(testKey)

	_, err := NewSealer("zzzz", codec)
	assert.Error(t, err)

	// 16字节密钥不满足AES-256
	_, err = NewSealer("00112233445566778899aabbccddeeff", codec)
	assert.Error(t, err)
}

func TestSealRoundTrip(t *testing.T) {
	sealer := newTestSealer(t)

	payload := map[string]interface{}{
		"points":    float64(3500),
		"nonce":     "0123456789abcdef0123456789abcdef",
		"timestamp": float64(1700000000000),
	}

	env, err := sealer.Seal(payload)
	require.NoError(t, err)

	assert.Len(t, env.IV, 32, "IV应为16字节的hex编码")
	assert.Len(t, env.Nonce, 32, "nonce应为16字节的hex编码")
	assert.NotZero(t, env.Timestamp)

	// 接收方独立重算信封签名
	codec := NewSignatureCodec(testKey)
	assert.Equal(t, codec.SignEnvelope(env.Encrypted, env.IV, env.Nonce, env.Timestamp), env.Sign)

	// 解密后应还原出原始业务数据
	plain, err := sealer.Open(env.Encrypted, env.IV)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(plain, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestSealFreshIVAndNonce(t *testing.T) {
	sealer := newTestSealer(t)

	a, err := sealer.Seal(map[string]string{"k": "v"})
	require.NoError(t, err)
	b, err := sealer.Seal(map[string]string{"k": "v"})
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV, "IV不允许跨调用复用")
	assert.NotEqual(t, a.Nonce, b.Nonce, "nonce不允许跨调用复用")
	assert.NotEqual(t, a.Encrypted, b.Encrypted, "相同明文在不同IV下密文应不同")
}

func TestOpenRejectsCorruptedInput(t *testing.T) {
	sealer := newTestSealer(t)

	env, err := sealer.Seal(map[string]string{"k": "v"})
	require.NoError(t, err)

	_, err = sealer.Open("zz", env.IV)
	assert.Error(t, err)

	_, err = sealer.Open(env.Encrypted, "00")
	assert.Error(t, err)

	// 截断到非整块长度
	_, err = sealer.Open(env.Encrypted[:10], env.IV)
	assert.Error(t, err)
}

func TestPKCS7(t *testing.T) {
	data := []byte("0123456789abcdef") // 恰好一个块，填充后应多出整块
	padded := pkcs7Pad(data, 16)
	assert.Len(t, padded, 32)

	unpadded, err := pkcs7Unpad(padded, 16)
	assert.NoError(t, err)
	assert.Equal(t, data, unpadded)

	_, err = pkcs7Unpad([]byte{1, 2, 3}, 16)
	assert.Error(t, err)
}
