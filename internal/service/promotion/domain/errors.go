// internal/service/promotion/domain/errors.go
package domain

import "errors"

// 业务错误码。应用层用 errors.Is 判定，接口层据此映射 HTTP 状态码，
// 指标按这些码的 Code() 维度计数。
var (
	ErrNotFound          = errors.New("promotion: not found")
	ErrNotIssuing        = errors.New("promotion: coupon is not issuing")
	ErrOutOfStock        = errors.New("promotion: coupon out of stock")
	ErrUserLimitExceeded = errors.New("promotion: user receive limit exceeded")
	ErrAlreadyRedeemed   = errors.New("promotion: exchange code already redeemed")
	ErrExpired           = errors.New("promotion: expired")
	ErrInvalidCode       = errors.New("promotion: invalid exchange code")
	ErrInvalidStatus     = errors.New("promotion: invalid coupon status for this operation")
)

// ErrCode 把业务错误翻译成指标/日志用的短码，非业务错误归为 internal。
func ErrCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotIssuing):
		return "not_issuing"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrUserLimitExceeded):
		return "user_limit_exceeded"
	case errors.Is(err, ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	default:
		return "internal"
	}
}
