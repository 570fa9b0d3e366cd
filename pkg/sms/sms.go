// Package sms 推广员短信通知
package sms

import "context"

// 模板键，与服务商模板编码的映射见 DefaultTemplates
const (
	TemplateCommissionEarned  = "commission_earned"
	TemplateWithdrawalPaid    = "withdrawal_paid"
	TemplateAffiliateApproved = "affiliate_approved"
)

// DefaultTemplates 未单独配置时使用的模板编码
var DefaultTemplates = map[string]string{
	TemplateCommissionEarned:  "SMS_COMMISSION",
	TemplateWithdrawalPaid:    "SMS_WITHDRAWAL_PAID",
	TemplateAffiliateApproved: "SMS_AFFILIATE_APPROVED",
}

// Message 一条模板短信
type Message struct {
	Phone    string
	Template string
	Params   map[string]string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// CommissionEarned 佣金到账
func CommissionEarned(phone, name, amount, school string) Message {
	return Message{Phone: phone, Template: TemplateCommissionEarned, Params: map[string]string{
		"name": name, "amount": amount, "school": school,
	}}
}

// WithdrawalPaid 提现已打款
func WithdrawalPaid(phone, name, amount string) Message {
	return Message{Phone: phone, Template: TemplateWithdrawalPaid, Params: map[string]string{
		"name": name, "amount": amount,
	}}
}

// AffiliateApproved 推广员审核通过，附带推广码
func AffiliateApproved(phone, name, code string) Message {
	return Message{Phone: phone, Template: TemplateAffiliateApproved, Params: map[string]string{
		"name": name, "code": code,
	}}
}
