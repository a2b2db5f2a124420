package service

// CDKError 业务错误，携带HTTP状态码与固定文案
// 调用方按错误值匹配，不解析文案；文案是对客户端的兼容契约，不可改动
type CDKError struct {
	Code    int
	Message string
}

func (e *CDKError) Error() string {
	return e.Message
}

var (
	ErrMalformedRequest    = &CDKError{Code: 400, Message: "请求数据格式错误"}
	ErrStaleRequest        = &CDKError{Code: 400, Message: "请求时间戳超出允许范围"}
	ErrSignatureInvalid    = &CDKError{Code: 403, Message: "签名验证失败，拒绝访问"}
	ErrReplayedRequest     = &CDKError{Code: 403, Message: "签名已被使用，拒绝重放请求"}
	ErrInvalidFormat       = &CDKError{Code: 400, Message: "激活码格式错误"}
	ErrAlreadyUsed         = &CDKError{Code: 400, Message: "激活码已被使用"}
	ErrNotActivatable      = &CDKError{Code: 400, Message: "激活码已失效"}
	ErrCDKExpired          = &CDKError{Code: 403, Message: "激活码已过期，请购买激活码"}
	ErrDeviceLimitReached  = &CDKError{Code: 400, Message: "设备绑定数量已达上限(2台)"}
	ErrInsufficientPoints  = &CDKError{Code: 400, Message: "积分不足"}
	ErrCDKNotFound         = &CDKError{Code: 404, Message: "激活码不存在"}
	ErrDeviceNotBound      = &CDKError{Code: 404, Message: "设备未绑定"}
	ErrGenerationExhausted = &CDKError{Code: 500, Message: "无法生成唯一的CDK代码，请重试"}
	ErrStoreUnavailable    = &CDKError{Code: 500, Message: "服务暂时不可用"}
)
