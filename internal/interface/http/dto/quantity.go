package dto

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawQuantity 数量原样透传给计算器
// 前端可能传数字 2，也可能传字符串 "2"、"2.5"、"abc"，
// 是否是合法的正整数由RefundCalculator判断并返回字段级错误，绑定阶段不拒绝
type RawQuantity string

// UnmarshalJSON 数字和字符串都接受
func (q *RawQuantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = RawQuantity(strings.TrimSpace(s))
		return nil
	}
	*q = RawQuantity(string(data))
	return nil
}

// String 原始文本
func (q RawQuantity) String() string {
	return string(q)
}
