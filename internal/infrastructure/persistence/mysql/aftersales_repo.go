package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// aftersalesRepository 售后单仓储实现(MySQL)
// 教学要点:
// 1. 领域实体与GORM模型分离,toXxxModel/toXxxEntity负责转换
// 2. LockByID使用 SELECT ... FOR UPDATE,必须在事务中调用
// 3. Update带 WHERE version = ? 做乐观锁,影响行数为0说明被并发修改
type aftersalesRepository struct {
	conn
}

// NewAftersalesRepository 创建售后单仓储
func NewAftersalesRepository(db *gorm.DB) aftersales.Repository {
	return &aftersalesRepository{conn{db: db}}
}

// Create 创建售后单
func (r *aftersalesRepository) Create(ctx context.Context, c *aftersales.Case) error {
	model, err := toAftersalesModel(c)
	if err != nil {
		return apperrors.Wrap(err, "售后单序列化失败")
	}
	if err := r.getDB(ctx).Create(model).Error; err != nil {
		if isDuplicateError(err) {
			return aftersales.ErrDuplicateAftersalesNo
		}
		return apperrors.Wrap(err, "创建售后单失败")
	}
	c.ID = model.ID
	return nil
}

// FindByID 根据ID查询
func (r *aftersalesRepository) FindByID(ctx context.Context, id uint) (*aftersales.Case, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

// FindByAftersalesNo 根据业务单号查询
func (r *aftersalesRepository) FindByAftersalesNo(ctx context.Context, no string) (*aftersales.Case, error) {
	return r.first(r.getDB(ctx).Where("aftersales_no = ?", no))
}

// LockByID 加行锁查询
// 生成SQL: SELECT * FROM aftersales WHERE id = ? LIMIT 1 FOR UPDATE
func (r *aftersalesRepository) LockByID(ctx context.Context, id uint) (*aftersales.Case, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *aftersalesRepository) first(q *gorm.DB) (*aftersales.Case, error) {
	var model AftersalesModel
	if err := q.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aftersales.ErrCaseNotFound
		}
		return nil, apperrors.Wrap(err, "查询售后单失败")
	}
	return toAftersalesEntity(&model)
}

// Update 乐观锁更新
// 快照只在创建时写入,这里不更新
func (r *aftersalesRepository) Update(ctx context.Context, c *aftersales.Case) error {
	model, err := toAftersalesModel(c)
	if err != nil {
		return apperrors.Wrap(err, "售后单序列化失败")
	}
	model.Version = c.Version + 1

	result := r.getDB(ctx).Model(&AftersalesModel{}).
		Where("id = ? AND version = ?", c.ID, c.Version).
		Select("*").
		Omit("id", "aftersales_no", "snapshot", "created_at").
		Updates(model)
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新售后单失败")
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrConcurrentUpdate
	}
	c.Version = model.Version
	return nil
}

// List 分页查询,按创建时间倒序
func (r *aftersalesRepository) List(ctx context.Context, q aftersales.ListQuery) ([]*aftersales.Case, int64, error) {
	query := r.getDB(ctx).Model(&AftersalesModel{})
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.OrderID != "" {
		query = query.Where("order_id = ?", q.OrderID)
	}
	if q.State != "" {
		query = query.Where("state = ?", string(q.State))
	}
	if q.Type != "" {
		query = query.Where("type = ?", string(q.Type))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询售后单总数失败")
	}

	var models []AftersalesModel
	page := query.Order("created_at DESC").Order("id DESC")
	if q.PageSize > 0 {
		offset := (q.Page - 1) * q.PageSize
		if offset < 0 {
			offset = 0
		}
		page = page.Limit(q.PageSize).Offset(offset)
	}
	if err := page.Find(&models).Error; err != nil {
		return nil, 0, apperrors.Wrap(err, "查询售后单列表失败")
	}

	cases, err := toAftersalesEntities(models)
	if err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

// SumActiveClaims 有效售后占用
// 生成SQL: SELECT id, order_product_id, quantity, actual_refund_amount FROM aftersales
//
//	WHERE order_product_id IN (?) AND state NOT IN ('CANCELLED','REJECTED')
func (r *aftersalesRepository) SumActiveClaims(ctx context.Context, orderProductIDs []uint) (map[uint][]aftersales.ClaimedAmount, error) {
	result := make(map[uint][]aftersales.ClaimedAmount)
	if len(orderProductIDs) == 0 {
		return result, nil
	}

	var rows []AftersalesModel
	err := r.getDB(ctx).
		Select("id", "order_product_id", "quantity", "actual_refund_amount").
		Where("order_product_id IN ?", orderProductIDs).
		Where("state NOT IN ?", releasedStates()).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询售后占用失败")
	}
	for _, row := range rows {
		result[row.OrderProductID] = append(result[row.OrderProductID], aftersales.ClaimedAmount{
			CaseID:       row.ID,
			Quantity:     row.Quantity,
			RefundAmount: row.ActualRefundAmount,
		})
	}
	return result, nil
}

// releasedStates 不占用可退数量的状态
func releasedStates() []string {
	var out []string
	for _, st := range aftersales.AllStates {
		if !st.CountsTowardClaims() {
			out = append(out, string(st))
		}
	}
	return out
}

// FindTimeoutBatch keyset分页扫描到期的售后单
// 生成SQL: ... WHERE state IN (?) AND auto_process_time <= ?
//
//	AND (auto_process_time > ? OR (auto_process_time = ? AND id > ?))
//	ORDER BY auto_process_time, id LIMIT ?
func (r *aftersalesRepository) FindTimeoutBatch(ctx context.Context, now time.Time, cursor *aftersales.TimeoutCursor, limit int) ([]*aftersales.Case, error) {
	states := make([]string, len(aftersales.TimeoutStates))
	for i, st := range aftersales.TimeoutStates {
		states[i] = string(st)
	}

	query := r.getDB(ctx).
		Where("state IN ?", states).
		Where("auto_process_time IS NOT NULL AND auto_process_time <= ?", now)
	if cursor != nil {
		query = query.Where("(auto_process_time > ? OR (auto_process_time = ? AND id > ?))",
			cursor.AutoProcessTime, cursor.AutoProcessTime, cursor.ID)
	}

	var models []AftersalesModel
	err := query.Order("auto_process_time ASC").Order("id ASC").Limit(limit).Find(&models).Error
	if err != nil {
		return nil, apperrors.Wrap(err, "查询超时售后单失败")
	}
	return toAftersalesEntities(models)
}

// =========================================
// 辅助函数:模型转换
// =========================================

func toAftersalesModel(c *aftersales.Case) (*AftersalesModel, error) {
	images, err := toJSON(c.ProofImages)
	if err != nil {
		return nil, err
	}
	var addr string
	if c.ExchangeAddress != nil {
		if addr, err = toJSON(c.ExchangeAddress); err != nil {
			return nil, err
		}
	}
	snapshot, err := toJSON(c.Snapshot())
	if err != nil {
		return nil, err
	}

	return &AftersalesModel{
		ID:                   c.ID,
		AftersalesNo:         c.AftersalesNo,
		OrderID:              c.OrderID,
		UserID:               c.UserID,
		OrderProductID:       c.OrderProductID,
		ProductID:            c.ProductID,
		SkuID:                c.SkuID,
		Type:                 string(c.Type),
		Reason:               string(c.Reason),
		State:                string(c.State),
		Source:               string(c.Source),
		Quantity:             c.Quantity,
		OriginalPrice:        c.OriginalPrice,
		PaidPrice:            c.PaidPrice,
		OriginalRefundAmount: c.OriginalRefundAmount,
		ActualRefundAmount:   c.ActualRefundAmount,
		RefundAmountModified: c.RefundAmountModified,
		ModifyReason:         c.ModifyReason,
		ModificationCount:    c.ModificationCount,
		ProofImages:          images,
		Description:          c.Description,
		RejectReason:         c.RejectReason,
		ServiceNote:          c.ServiceNote,
		LogisticsCompany:     c.LogisticsCompany,
		LogisticsNo:          c.LogisticsNo,
		ExchangeSkuID:        c.ExchangeSkuID,
		ExchangeAddress:      addr,
		Snapshot:             snapshot,
		AutoProcessTime:      timePtr(c.AutoProcessTime),
		AuditTime:            timePtr(c.AuditTime),
		CompletedTime:        timePtr(c.CompletedTime),
		CreatedAt:            c.CreatedAt,
		UpdatedAt:            c.UpdatedAt,
		Version:              c.Version,
	}, nil
}

func toAftersalesEntity(m *AftersalesModel) (*aftersales.Case, error) {
	c := &aftersales.Case{
		ID:                   m.ID,
		AftersalesNo:         m.AftersalesNo,
		OrderID:              m.OrderID,
		UserID:               m.UserID,
		OrderProductID:       m.OrderProductID,
		ProductID:            m.ProductID,
		SkuID:                m.SkuID,
		Type:                 aftersales.CaseType(m.Type),
		Reason:               aftersales.Reason(m.Reason),
		State:                aftersales.State(m.State),
		Source:               aftersales.Source(m.Source),
		Quantity:             m.Quantity,
		OriginalPrice:        m.OriginalPrice,
		PaidPrice:            m.PaidPrice,
		OriginalRefundAmount: m.OriginalRefundAmount,
		ActualRefundAmount:   m.ActualRefundAmount,
		RefundAmountModified: m.RefundAmountModified,
		ModifyReason:         m.ModifyReason,
		ModificationCount:    m.ModificationCount,
		Description:          m.Description,
		RejectReason:         m.RejectReason,
		ServiceNote:          m.ServiceNote,
		LogisticsCompany:     m.LogisticsCompany,
		LogisticsNo:          m.LogisticsNo,
		ExchangeSkuID:        m.ExchangeSkuID,
		AutoProcessTime:      timePtr(m.AutoProcessTime),
		AuditTime:            timePtr(m.AuditTime),
		CompletedTime:        timePtr(m.CompletedTime),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
		Version:              m.Version,
	}
	if err := fromJSON(m.ProofImages, &c.ProofImages); err != nil {
		return nil, apperrors.Wrap(err, "解析凭证图片失败")
	}
	if m.ExchangeAddress != "" {
		var addr suborder.Address
		if err := fromJSON(m.ExchangeAddress, &addr); err != nil {
			return nil, apperrors.Wrap(err, "解析换货地址失败")
		}
		c.ExchangeAddress = &addr
	}
	var snapshot aftersales.ProductSnapshot
	if err := fromJSON(m.Snapshot, &snapshot); err != nil {
		return nil, apperrors.Wrap(err, "解析商品快照失败")
	}
	if !snapshot.IsZero() {
		if err := c.FreezeSnapshot(snapshot); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func toAftersalesEntities(models []AftersalesModel) ([]*aftersales.Case, error) {
	cases := make([]*aftersales.Case, 0, len(models))
	for i := range models {
		c, err := toAftersalesEntity(&models[i])
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, nil
}
