package suborder

import "strings"

// Address 收/寄件地址(值对象,创建子单时快照保存)
type Address struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Validate 三个字段都必填
func (a Address) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Phone) == "" || strings.TrimSpace(a.Address) == "" {
		return ErrInvalidAddress
	}
	return nil
}

// IsZero 是否为空地址
func (a Address) IsZero() bool {
	return a == Address{}
}
