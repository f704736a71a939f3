// Package memory 内存存储实现,用于本地开发(database.driver=memory)和应用层测试
package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
)

type txKey struct{}

// dataset 一份完整数据,事务开始时整体拷贝用于回滚
type dataset struct {
	cases       map[uint]*aftersales.Case
	caseSeq     uint
	logs        []*aftersales.Log
	logSeq      uint
	refunds     map[uint]*suborder.RefundOrder
	refundSeq   uint
	returns     map[uint]*suborder.ReturnOrder
	returnSeq   uint
	exchanges   map[uint]*suborder.ExchangeOrder
	exchangeSeq uint
	lines       map[uint]aftersales.OrderLine
	skuPrices   map[uint]decimal.Decimal
}

func newDataset() *dataset {
	return &dataset{
		cases:     make(map[uint]*aftersales.Case),
		refunds:   make(map[uint]*suborder.RefundOrder),
		returns:   make(map[uint]*suborder.ReturnOrder),
		exchanges: make(map[uint]*suborder.ExchangeOrder),
		lines:     make(map[uint]aftersales.OrderLine),
		skuPrices: make(map[uint]decimal.Decimal),
	}
}

func (d *dataset) clone() *dataset {
	cp := newDataset()
	cp.caseSeq, cp.logSeq, cp.refundSeq, cp.returnSeq, cp.exchangeSeq = d.caseSeq, d.logSeq, d.refundSeq, d.returnSeq, d.exchangeSeq
	for id, c := range d.cases {
		cp.cases[id] = c.Clone()
	}
	cp.logs = make([]*aftersales.Log, len(d.logs))
	for i, l := range d.logs {
		cp.logs[i] = cloneLog(l)
	}
	for id, r := range d.refunds {
		v := *r
		cp.refunds[id] = &v
	}
	for id, r := range d.returns {
		v := *r
		cp.returns[id] = &v
	}
	for id, e := range d.exchanges {
		v := *e
		cp.exchanges[id] = &v
	}
	for id, l := range d.lines {
		cp.lines[id] = l
	}
	for id, p := range d.skuPrices {
		cp.skuPrices[id] = p
	}
	return cp
}

// Store 内存数据
// 教学要点:
// 1. 事务串行执行(txMu),所以LockByID不需要额外的行锁
// 2. 事务开始时拷贝整份数据,fn返回错误时整体恢复,和数据库ROLLBACK效果一致
// 3. 存取都拷贝实体,调用方修改返回值不会影响存储
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *dataset
}

// NewStore 创建内存存储
func NewStore() *Store {
	return &Store{data: newDataset()}
}

// SeedOrderLines 写入订单明细(模拟外部订单系统)
func (s *Store) SeedOrderLines(lines ...aftersales.OrderLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		s.data.lines[l.OrderProductID] = l
	}
}

// SeedSkuPrice 写入SKU单价
func (s *Store) SeedSkuPrice(skuID uint, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.skuPrices[skuID] = price
}

func (s *Store) read(fn func(d *dataset) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(d *dataset) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// TxManager 内存事务管理器
type TxManager struct {
	store *Store
}

// NewTxManager 创建事务管理器
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// Transaction 串行执行fn,返回错误时回滚
// 嵌套调用直接复用外层事务
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	m.store.txMu.Lock()
	defer m.store.txMu.Unlock()

	var backup *dataset
	_ = m.store.read(func(d *dataset) error {
		backup = d.clone()
		return nil
	})
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		_ = m.store.write(func(d *dataset) error {
			m.store.data = backup
			return nil
		})
		return err
	}
	return nil
}

func cloneLog(l *aftersales.Log) *aftersales.Log {
	cp := *l
	if l.Context != nil {
		cp.Context = make(map[string]interface{}, len(l.Context))
		for k, v := range l.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}
