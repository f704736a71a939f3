package gateway

import (
	"context"

	"github.com/xiebiao/aftersales/internal/domain/suborder"
	"github.com/xiebiao/aftersales/internal/infrastructure/config"
)

// ConfigAddressProvider 从配置读取商家默认退货地址
type ConfigAddressProvider struct {
	addr suborder.Address
}

// NewConfigAddressProvider 创建地址提供者
func NewConfigAddressProvider(cfg *config.Config) *ConfigAddressProvider {
	a := cfg.Aftersales.ReturnAddress
	return &ConfigAddressProvider{addr: suborder.Address{Name: a.Name, Phone: a.Phone, Address: a.Address}}
}

// DefaultAddress 地址不完整时返回ErrInvalidAddress，退货单创建失败
func (p *ConfigAddressProvider) DefaultAddress(_ context.Context) (suborder.Address, error) {
	if err := p.addr.Validate(); err != nil {
		return suborder.Address{}, err
	}
	return p.addr, nil
}
