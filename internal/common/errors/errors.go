// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，便于 errors.Is(err, ErrInvalidAmount) 判断
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装错误
func Wrap(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Message 为返回给客户端的英文文案

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "Unknown error")
	ErrInvalidParams   = New(1001, "Invalid parameters")
	ErrNotFound        = New(1002, "Resource not found")
	ErrAlreadyExists   = New(1003, "Resource already exists")
	ErrStoreFailure    = New(1004, "Could not save data, please try again later")
	ErrCacheError      = New(1005, "Cache error")
	ErrInternalError   = New(1006, "Internal error")
	ErrExternalService = New(1007, "External service error")
	ErrRateLimitExceed = New(1008, "Too many requests")
	ErrOperationFailed = New(1009, "Operation failed")
)

// ErrDatabaseError 兼容旧名称
var ErrDatabaseError = ErrStoreFailure

// 认证错误码 (2000-2999)
var (
	ErrUnauthorized     = New(2000, "Not logged in")
	ErrTokenExpired     = New(2001, "Session expired")
	ErrTokenInvalid     = New(2002, "Invalid token")
	ErrPermissionDenied = New(2004, "Permission denied")
	ErrAccountDisabled  = New(2005, "Account disabled")
	ErrPasswordError    = New(2007, "Incorrect username or password")
	ErrAdminNotFound    = New(2008, "Admin not found")
)

// 推广员错误码 (3000-3999)
var (
	ErrAffiliateNotFound      = New(3000, "Affiliate not found")
	ErrUsernameTaken          = New(3001, "Referral code already taken")
	ErrEmailTaken             = New(3002, "Email already registered")
	ErrAffiliateNotApproved   = New(3003, "Affiliate account is not approved yet")
	ErrInvalidCommissionRate  = New(3004, "Commission rate must be between 0 and 100")
	ErrInvalidAffiliateStatus = New(3005, "Invalid affiliate status")
)

// 推荐访问与归因错误码 (4000-4999)
var (
	ErrInvalidReferralCode   = New(4000, "Referral code is invalid or inactive")
	ErrAttributionConflict   = New(4001, "Commission attribution conflict, please retry")
	ErrAttributionInProgress = New(4002, "Commission attribution in progress, please retry later")
)

// 提现错误码 (5000-5999)
var (
	ErrInvalidAmount      = New(5000, "Invalid withdrawal amount")
	ErrInvalidTransition  = New(5001, "Withdrawal status does not allow this action")
	ErrWithdrawalNotFound = New(5002, "Withdrawal request not found")
)

// 支付错误码 (6000-6999)
var (
	ErrPaymentNotFound       = New(6000, "Payment not found")
	ErrPaymentFailed         = New(6001, "Payment failed")
	ErrGatewayTimeout        = New(6002, "Payment gateway timed out, please try again later")
	ErrGatewayFailure        = New(6003, "Payment gateway error")
	ErrPaymentAmountMismatch = New(6004, "Paid amount does not match the order")
	ErrInvalidSignature      = New(6005, "Invalid webhook signature")
	ErrAlreadyPaid           = New(6006, "Already paid")
	ErrEvidenceNotFound      = New(6007, "Payment evidence not found")
	ErrEvidenceReviewed      = New(6008, "Payment evidence already reviewed")
)

// 报名与定价错误码 (7000-7999)
var (
	ErrSignupNotFound        = New(7000, "School signup not found")
	ErrPlanNotFound          = New(7001, "Pricing plan not found")
	ErrInvalidStudentCount   = New(7002, "Student count must be greater than 0")
	ErrDiscountCodeInvalid   = New(7003, "Discount code is invalid or expired")
	ErrDiscountCodeExhausted = New(7004, "Discount code usage limit reached for this email")
	ErrRenewalNotFound       = New(7005, "Renewal not found")
	ErrContactNotFound       = New(7006, "Contact message not found")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// Is 透传标准库 errors.Is
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As 透传标准库 errors.As
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
