package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope 加密响应信封，五个字段自描述，客户端先验签再解密
type Envelope struct {
	Encrypted string `json:"encrypted"`
	IV        string `json:"iv"`
	Nonce     string `json:"nonce"`
	Timestamp int64  `json:"timestamp"`
	Sign      string `json:"sign"`
}

// Sealer 构造加密响应信封：AES-256-CBC加密 + nonce + 信封签名
type Sealer struct {
	aesKey []byte
	codec  *SignatureCodec
}

// NewSealer AES密钥为64位hex字符串，解码后必须是32字节
func NewSealer(aesKeyHex string, codec *SignatureCodec) (*Sealer, error) {
	key, err := hex.DecodeString(aesKeyHex)
	if err != nil {
		return nil, fmt.Errorf("AES密钥不是合法的hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("AES密钥长度错误: 期望32字节，实际%d字节", len(key))
	}
	return &Sealer{aesKey: key, codec: codec}, nil
}

// Seal 序列化业务数据并封装为加密信封，每次调用生成全新IV和nonce
func (s *Sealer) Seal(payload interface{}) (*Envelope, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.aesKey)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plain, aes.BlockSize)
	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, err
	}
	timestamp := time.Now().UnixMilli()

	encryptedHex := hex.EncodeToString(encrypted)
	ivHex := hex.EncodeToString(iv)

	return &Envelope{
		Encrypted: encryptedHex,
		IV:        ivHex,
		Nonce:     nonce,
		Timestamp: timestamp,
		Sign:      s.codec.SignEnvelope(encryptedHex, ivHex, nonce, timestamp),
	}, nil
}

// Open 解开信封密文，客户端解密的服务端对应实现，测试回环使用
func (s *Sealer) Open(encryptedHex, ivHex string) ([]byte, error) {
	encrypted, err := hex.DecodeString(encryptedHex)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize || len(encrypted) == 0 || len(encrypted)%aes.BlockSize != 0 {
		return nil, errors.New("密文或IV长度非法")
	}

	block, err := aes.NewCipher(s.aesKey)
	if err != nil {
		return nil, err
	}

	plain := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, encrypted)
	return pkcs7Unpad(plain, aes.BlockSize)
}

// GenerateNonce 生成16字节随机数的hex编码（32个hex字符）
func GenerateNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("填充数据长度非法")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, errors.New("PKCS#7填充非法")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.New("PKCS#7填充非法")
		}
	}
	return data[:len(data)-padding], nil
}
