package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// 通用字段
var (
	String = zap.String
	Int    = zap.Int
	Err    = zap.Error
)

// 业务字段，键名与运维看板的查询保持一致

func RequestID(id string) zap.Field      { return zap.String("request_id", id) }
func AdminID(id int64) zap.Field         { return zap.Int64("admin_id", id) }
func AffiliateID(id int64) zap.Field     { return zap.Int64("affiliate_id", id) }
func SignupID(id int64) zap.Field        { return zap.Int64("signup_id", id) }
func VisitID(id int64) zap.Field         { return zap.Int64("visit_id", id) }
func WithdrawalID(id int64) zap.Field    { return zap.Int64("withdrawal_id", id) }
func ReferralCode(code string) zap.Field { return zap.String("referral_code", code) }

// Reference 支付流水号
func Reference(ref string) zap.Field { return zap.String("reference", ref) }

// Amount 金额以字符串输出，保留 decimal 精度
func Amount(amount fmt.Stringer) zap.Field { return zap.Stringer("amount", amount) }

// 操作日志与访问日志字段

func Module(name string) zap.Field      { return zap.String("module", name) }
func Action(name string) zap.Field      { return zap.String("action", name) }
func Method(method string) zap.Field    { return zap.String("method", method) }
func Path(path string) zap.Field        { return zap.String("path", path) }
func IP(ip string) zap.Field            { return zap.String("ip", ip) }
func StatusCode(code int) zap.Field     { return zap.Int("status_code", code) }
func Latency(d time.Duration) zap.Field { return zap.Duration("latency", d) }
