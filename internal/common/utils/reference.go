// Package utils 金额、流水号、文本规范化与分页等小工具
package utils

import (
	"crypto/rand"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// 支付流水号前缀
const (
	ReferencePrefixSignup  = "SIGNUP"
	ReferencePrefixRenewal = "REN"
)

const referenceNonceDigits = 4

// GenerateReference 生成网关交易流水号：前缀_业务ID_Unix秒_4位随机数
// 同一业务单在同一秒内重复发起时靠随机尾数区分
func GenerateReference(prefix string, id int64, now time.Time) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(id, 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(now.Unix(), 10))
	b.WriteByte('_')
	b.WriteString(nonce(referenceNonceDigits))
	return b.String()
}

func nonce(digits int) string {
	max := big.NewInt(10)
	buf := make([]byte, digits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(time.Now().UnixNano() % 10)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf)
}
