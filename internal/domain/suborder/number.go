package suborder

import (
	"fmt"
	"math/rand"
	"time"
)

// 子单号前缀
const (
	PrefixRefund   = "RF"
	PrefixReturn   = "RT"
	PrefixExchange = "EX"
)

// GenerateNo 生成子单号
// 格式:前缀 + 8位日期 + 6位随机数,如 RF20240501123456
// 只在构造函数中调用一次,之后不可修改;唯一性由数据库唯一索引兜底
func GenerateNo(prefix string, now time.Time) string {
	return fmt.Sprintf("%s%s%06d", prefix, now.Format("20060102"), rand.Intn(1000000))
}
