package aftersales

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateAftersalesNo 生成售后单号
// 格式:AS + 8位日期 + 6位随机数,如 AS20240501012345
// 与订单号同样的设计:时间有序、不可遍历,唯一性由数据库唯一索引保证
// OMS同步过来的售后单沿用OMS的单号,不调用这里
func GenerateAftersalesNo(now time.Time) string {
	return fmt.Sprintf("AS%s%06d", now.Format("20060102"), rand.Intn(1000000))
}
