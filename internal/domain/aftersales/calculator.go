package aftersales

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// 可退计算器(纯函数)
// 教学要点:
// 1. 不访问数据库:调用方批量查好订单明细和已占用记录后传入
// 2. 只做计算不做修改;创建售后单时调用方必须在同一事务内加锁重算一次
// 3. 金额全部使用decimal,四舍五入保留2位

// CalcItem 计算请求中的一行
// Quantity保留原始字符串,非数字属于结构性错误
type CalcItem struct {
	OrderProductID uint
	Quantity       string
}

// CalcInput 计算输入
type CalcInput struct {
	OrderID string
	Items   []CalcItem
	Lines   map[uint]OrderLine
	Claims  map[uint][]ClaimedAmount
}

// FieldError 字段级错误
type FieldError struct {
	Index          int    `json:"index"`
	OrderProductID uint   `json:"order_product_id,omitempty"`
	Field          string `json:"field"`
	Message        string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("items[%d].%s: %s", e.Index, e.Field, e.Message)
}

// RefundLineResult 单行计算结果
type RefundLineResult struct {
	OrderProductID          uint            `json:"order_product_id"`
	OrderQuantity           int             `json:"order_quantity"`
	RequestedQuantity       int             `json:"requested_quantity"`
	AlreadyRefundedQuantity int             `json:"already_refunded_quantity"`
	AlreadyRefundedAmount   decimal.Decimal `json:"already_refunded_amount"`
	MaxRefundableQuantity   int             `json:"max_refundable_quantity"`
	UnitPaidPrice           decimal.Decimal `json:"unit_paid_price"`
	RefundableAmount        decimal.Decimal `json:"refundable_amount"`
	IsGift                  bool            `json:"is_gift"`
	CanRefund               bool            `json:"can_refund"`
	Error                   string          `json:"error,omitempty"`
}

// RefundCalculationResult 计算结果
type RefundCalculationResult struct {
	OrderID               string             `json:"order_id"`
	Lines                 []RefundLineResult `json:"lines"`
	TotalRefundableAmount decimal.Decimal    `json:"total_refundable_amount"`
	CanRefund             bool               `json:"can_refund"`
	Errors                []FieldError       `json:"errors,omitempty"`
}

// RoundMoney 金额保留2位(四舍五入,金额均为非负数)
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MaxRefundable 可退数量 = 购买数量 - 已占用数量(不小于0)
func MaxRefundable(orderQuantity int, claims []ClaimedAmount) (claimed, remaining int) {
	for _, c := range claims {
		claimed += c.Quantity
	}
	remaining = orderQuantity - claimed
	if remaining < 0 {
		remaining = 0
	}
	return claimed, remaining
}

// Calculate 计算每行可退数量和金额
func Calculate(in CalcInput) *RefundCalculationResult {
	result := &RefundCalculationResult{
		OrderID:               in.OrderID,
		TotalRefundableAmount: decimal.Zero,
	}

	if len(in.Items) == 0 {
		result.Errors = append(result.Errors, FieldError{Field: "items", Message: "items must not be empty"})
		return result
	}

	seen := make(map[uint]bool, len(in.Items))
	allLinesOK := true

	for i, item := range in.Items {
		if seen[item.OrderProductID] {
			result.Errors = append(result.Errors, FieldError{
				Index: i, OrderProductID: item.OrderProductID, Field: "order_product_id",
				Message: fmt.Sprintf("duplicate line for orderProductId %d", item.OrderProductID),
			})
			continue
		}
		seen[item.OrderProductID] = true

		line, ok := in.Lines[item.OrderProductID]
		if !ok || (in.OrderID != "" && line.OrderID != in.OrderID) {
			result.Errors = append(result.Errors, FieldError{
				Index: i, OrderProductID: item.OrderProductID, Field: "order_product_id",
				Message: fmt.Sprintf("order line %d not found in order %s", item.OrderProductID, in.OrderID),
			})
			continue
		}

		requested, err := strconv.Atoi(strings.TrimSpace(item.Quantity))
		if err != nil {
			result.Errors = append(result.Errors, FieldError{
				Index: i, OrderProductID: item.OrderProductID, Field: "quantity",
				Message: fmt.Sprintf("non-numeric quantity %q", item.Quantity),
			})
			continue
		}

		lr := calculateLine(line, requested, in.Claims[item.OrderProductID])
		if !lr.CanRefund {
			allLinesOK = false
			field := "quantity"
			if lr.IsGift {
				field = "order_product_id"
			}
			result.Errors = append(result.Errors, FieldError{
				Index: i, OrderProductID: item.OrderProductID, Field: field, Message: lr.Error,
			})
		} else {
			result.TotalRefundableAmount = result.TotalRefundableAmount.Add(lr.RefundableAmount)
		}
		result.Lines = append(result.Lines, lr)
	}

	result.CanRefund = allLinesOK && len(result.Errors) == 0
	return result
}

func calculateLine(line OrderLine, requested int, claims []ClaimedAmount) RefundLineResult {
	claimedQty, maxQty := MaxRefundable(line.Quantity, claims)

	claimedAmount := decimal.Zero
	for _, c := range claims {
		claimedAmount = claimedAmount.Add(c.RefundAmount)
	}

	effective := requested
	if effective > maxQty {
		effective = maxQty
	}
	if effective < 0 {
		effective = 0
	}

	lr := RefundLineResult{
		OrderProductID:          line.OrderProductID,
		OrderQuantity:           line.Quantity,
		RequestedQuantity:       requested,
		AlreadyRefundedQuantity: claimedQty,
		AlreadyRefundedAmount:   claimedAmount,
		MaxRefundableQuantity:   maxQty,
		UnitPaidPrice:           line.UnitPaidPrice,
		RefundableAmount:        RoundMoney(line.UnitPaidPrice.Mul(decimal.NewFromInt(int64(effective)))),
		IsGift:                  line.IsGift,
	}

	switch {
	case line.IsGift:
		lr.RefundableAmount = decimal.Zero
		lr.Error = "gift line not refundable"
	case requested <= 0:
		lr.Error = "quantity must be greater than 0"
	case requested > maxQty:
		lr.Error = fmt.Sprintf("requested quantity %d exceeds max refundable quantity %d", requested, maxQty)
	default:
		lr.CanRefund = true
	}
	return lr
}
