package mysql

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiebiao/aftersales/internal/domain/suborder"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// 子单仓储
// 教学要点:
// 1. 三种子单结构相似,各自一张表,各自一个仓储
// 2. 子单的并发控制依赖售后单行锁(先锁售后单再改子单),这里的LockByID用于单独处理子单的场景

// =========================================
// 退款单
// =========================================

type refundRepository struct {
	conn
}

// NewRefundRepository 创建退款单仓储
func NewRefundRepository(db *gorm.DB) suborder.RefundRepository {
	return &refundRepository{conn{db: db}}
}

func (r *refundRepository) Create(ctx context.Context, o *suborder.RefundOrder) error {
	m := toRefundModel(o)
	if err := r.getDB(ctx).Create(m).Error; err != nil {
		return apperrors.Wrap(err, "创建退款单失败")
	}
	o.ID = m.ID
	return nil
}

func (r *refundRepository) FindByID(ctx context.Context, id uint) (*suborder.RefundOrder, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

func (r *refundRepository) LockByID(ctx context.Context, id uint) (*suborder.RefundOrder, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *refundRepository) first(q *gorm.DB) (*suborder.RefundOrder, error) {
	var m RefundOrderModel
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, suborder.ErrRefundOrderNotFound
		}
		return nil, apperrors.Wrap(err, "查询退款单失败")
	}
	return toRefundEntity(&m), nil
}

func (r *refundRepository) FindByCaseID(ctx context.Context, caseID uint) ([]*suborder.RefundOrder, error) {
	var models []RefundOrderModel
	if err := r.getDB(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询退款单失败")
	}
	result := make([]*suborder.RefundOrder, 0, len(models))
	for i := range models {
		result = append(result, toRefundEntity(&models[i]))
	}
	return result, nil
}

func (r *refundRepository) Update(ctx context.Context, o *suborder.RefundOrder) error {
	result := r.getDB(ctx).Model(&RefundOrderModel{}).
		Where("id = ?", o.ID).
		Select("*").
		Omit("id", "refund_no", "case_id", "created_at").
		Updates(toRefundModel(o))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新退款单失败")
	}
	if result.RowsAffected == 0 {
		return suborder.ErrRefundOrderNotFound
	}
	return nil
}

func toRefundModel(o *suborder.RefundOrder) *RefundOrderModel {
	return &RefundOrderModel{
		ID:            o.ID,
		RefundNo:      o.RefundNo,
		CaseID:        o.CaseID,
		OrderID:       o.OrderID,
		Amount:        o.Amount,
		Status:        string(o.Status),
		TransactionNo: o.TransactionNo,
		FailureReason: o.FailureReason,
		RetryCount:    o.RetryCount,
		ProcessingAt:  timePtr(o.ProcessingAt),
		SucceededAt:   timePtr(o.SucceededAt),
		FailedAt:      timePtr(o.FailedAt),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toRefundEntity(m *RefundOrderModel) *suborder.RefundOrder {
	return &suborder.RefundOrder{
		ID:            m.ID,
		RefundNo:      m.RefundNo,
		CaseID:        m.CaseID,
		OrderID:       m.OrderID,
		Amount:        m.Amount,
		Status:        suborder.RefundStatus(m.Status),
		TransactionNo: m.TransactionNo,
		FailureReason: m.FailureReason,
		RetryCount:    m.RetryCount,
		ProcessingAt:  timePtr(m.ProcessingAt),
		SucceededAt:   timePtr(m.SucceededAt),
		FailedAt:      timePtr(m.FailedAt),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// =========================================
// 退货单
// =========================================

type returnRepository struct {
	conn
}

// NewReturnRepository 创建退货单仓储
func NewReturnRepository(db *gorm.DB) suborder.ReturnRepository {
	return &returnRepository{conn{db: db}}
}

func (r *returnRepository) Create(ctx context.Context, o *suborder.ReturnOrder) error {
	m := toReturnModel(o)
	if err := r.getDB(ctx).Create(m).Error; err != nil {
		return apperrors.Wrap(err, "创建退货单失败")
	}
	o.ID = m.ID
	return nil
}

func (r *returnRepository) FindByID(ctx context.Context, id uint) (*suborder.ReturnOrder, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

func (r *returnRepository) LockByID(ctx context.Context, id uint) (*suborder.ReturnOrder, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// FindByTrackingNo 快递公司入库时已统一大写
func (r *returnRepository) FindByTrackingNo(ctx context.Context, carrierCode, trackingNo string) (*suborder.ReturnOrder, error) {
	carrierCode = strings.ToUpper(strings.TrimSpace(carrierCode))
	trackingNo = strings.TrimSpace(trackingNo)
	return r.first(r.getDB(ctx).
		Where("carrier_code = ? AND tracking_no = ?", carrierCode, trackingNo).
		Order("id DESC"))
}

func (r *returnRepository) first(q *gorm.DB) (*suborder.ReturnOrder, error) {
	var m ReturnOrderModel
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, suborder.ErrReturnOrderNotFound
		}
		return nil, apperrors.Wrap(err, "查询退货单失败")
	}
	return toReturnEntity(&m), nil
}

func (r *returnRepository) FindByCaseID(ctx context.Context, caseID uint) ([]*suborder.ReturnOrder, error) {
	var models []ReturnOrderModel
	if err := r.getDB(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询退货单失败")
	}
	result := make([]*suborder.ReturnOrder, 0, len(models))
	for i := range models {
		result = append(result, toReturnEntity(&models[i]))
	}
	return result, nil
}

func (r *returnRepository) Update(ctx context.Context, o *suborder.ReturnOrder) error {
	result := r.getDB(ctx).Model(&ReturnOrderModel{}).
		Where("id = ?", o.ID).
		Select("*").
		Omit("id", "return_no", "case_id", "created_at").
		Updates(toReturnModel(o))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新退货单失败")
	}
	if result.RowsAffected == 0 {
		return suborder.ErrReturnOrderNotFound
	}
	return nil
}

func toReturnModel(o *suborder.ReturnOrder) *ReturnOrderModel {
	return &ReturnOrderModel{
		ID:             o.ID,
		ReturnNo:       o.ReturnNo,
		CaseID:         o.CaseID,
		Quantity:       o.Quantity,
		AddressName:    o.Address.Name,
		AddressPhone:   o.Address.Phone,
		AddressDetail:  o.Address.Address,
		CarrierCode:    o.CarrierCode,
		TrackingNo:     o.TrackingNo,
		Status:         string(o.Status),
		InspectionNote: o.InspectionNote,
		ShippedAt:      timePtr(o.ShippedAt),
		ReceivedAt:     timePtr(o.ReceivedAt),
		InspectedAt:    timePtr(o.InspectedAt),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func toReturnEntity(m *ReturnOrderModel) *suborder.ReturnOrder {
	return &suborder.ReturnOrder{
		ID:       m.ID,
		ReturnNo: m.ReturnNo,
		CaseID:   m.CaseID,
		Quantity: m.Quantity,
		Address: suborder.Address{
			Name:    m.AddressName,
			Phone:   m.AddressPhone,
			Address: m.AddressDetail,
		},
		CarrierCode:    m.CarrierCode,
		TrackingNo:     m.TrackingNo,
		Status:         suborder.ReturnStatus(m.Status),
		InspectionNote: m.InspectionNote,
		ShippedAt:      timePtr(m.ShippedAt),
		ReceivedAt:     timePtr(m.ReceivedAt),
		InspectedAt:    timePtr(m.InspectedAt),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// =========================================
// 换货单
// =========================================

type exchangeRepository struct {
	conn
}

// NewExchangeRepository 创建换货单仓储
func NewExchangeRepository(db *gorm.DB) suborder.ExchangeRepository {
	return &exchangeRepository{conn{db: db}}
}

func (r *exchangeRepository) Create(ctx context.Context, o *suborder.ExchangeOrder) error {
	m := toExchangeModel(o)
	if err := r.getDB(ctx).Create(m).Error; err != nil {
		return apperrors.Wrap(err, "创建换货单失败")
	}
	o.ID = m.ID
	return nil
}

func (r *exchangeRepository) FindByID(ctx context.Context, id uint) (*suborder.ExchangeOrder, error) {
	return r.first(r.getDB(ctx).Where("id = ?", id))
}

func (r *exchangeRepository) LockByID(ctx context.Context, id uint) (*suborder.ExchangeOrder, error) {
	return r.first(r.getDB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *exchangeRepository) first(q *gorm.DB) (*suborder.ExchangeOrder, error) {
	var m ExchangeOrderModel
	if err := q.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, suborder.ErrExchangeOrderNotFound
		}
		return nil, apperrors.Wrap(err, "查询换货单失败")
	}
	return toExchangeEntity(&m), nil
}

func (r *exchangeRepository) FindByCaseID(ctx context.Context, caseID uint) ([]*suborder.ExchangeOrder, error) {
	var models []ExchangeOrderModel
	if err := r.getDB(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询换货单失败")
	}
	result := make([]*suborder.ExchangeOrder, 0, len(models))
	for i := range models {
		result = append(result, toExchangeEntity(&models[i]))
	}
	return result, nil
}

func (r *exchangeRepository) Update(ctx context.Context, o *suborder.ExchangeOrder) error {
	result := r.getDB(ctx).Model(&ExchangeOrderModel{}).
		Where("id = ?", o.ID).
		Select("*").
		Omit("id", "exchange_no", "case_id", "created_at").
		Updates(toExchangeModel(o))
	if result.Error != nil {
		return apperrors.Wrap(result.Error, "更新换货单失败")
	}
	if result.RowsAffected == 0 {
		return suborder.ErrExchangeOrderNotFound
	}
	return nil
}

func toExchangeModel(o *suborder.ExchangeOrder) *ExchangeOrderModel {
	return &ExchangeOrderModel{
		ID:                o.ID,
		ExchangeNo:        o.ExchangeNo,
		CaseID:            o.CaseID,
		OriginalSkuID:     o.OriginalSkuID,
		ExchangeSkuID:     o.ExchangeSkuID,
		Quantity:          o.Quantity,
		OriginalItemPrice: o.OriginalItemPrice,
		ExchangeItemPrice: o.ExchangeItemPrice,
		AddressName:       o.Address.Name,
		AddressPhone:      o.Address.Phone,
		AddressDetail:     o.Address.Address,
		ReturnCarrier:     o.ReturnCarrier,
		ReturnTrackingNo:  o.ReturnTrackingNo,
		ShipCarrier:       o.ShipCarrier,
		ShipTrackingNo:    o.ShipTrackingNo,
		RejectReason:      o.RejectReason,
		Status:            string(o.Status),
		ApprovedAt:        timePtr(o.ApprovedAt),
		ReturnShippedAt:   timePtr(o.ReturnShippedAt),
		ReturnReceivedAt:  timePtr(o.ReturnReceivedAt),
		ShippedAt:         timePtr(o.ShippedAt),
		CompletedAt:       timePtr(o.CompletedAt),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toExchangeEntity(m *ExchangeOrderModel) *suborder.ExchangeOrder {
	return &suborder.ExchangeOrder{
		ID:                m.ID,
		ExchangeNo:        m.ExchangeNo,
		CaseID:            m.CaseID,
		OriginalSkuID:     m.OriginalSkuID,
		ExchangeSkuID:     m.ExchangeSkuID,
		Quantity:          m.Quantity,
		OriginalItemPrice: m.OriginalItemPrice,
		ExchangeItemPrice: m.ExchangeItemPrice,
		Address: suborder.Address{
			Name:    m.AddressName,
			Phone:   m.AddressPhone,
			Address: m.AddressDetail,
		},
		ReturnCarrier:    m.ReturnCarrier,
		ReturnTrackingNo: m.ReturnTrackingNo,
		ShipCarrier:      m.ShipCarrier,
		ShipTrackingNo:   m.ShipTrackingNo,
		RejectReason:     m.RejectReason,
		Status:           suborder.ExchangeStatus(m.Status),
		ApprovedAt:       timePtr(m.ApprovedAt),
		ReturnShippedAt:  timePtr(m.ReturnShippedAt),
		ReturnReceivedAt: timePtr(m.ReturnReceivedAt),
		ShippedAt:        timePtr(m.ShippedAt),
		CompletedAt:      timePtr(m.CompletedAt),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
