package mysql

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/xiebiao/aftersales/internal/infrastructure/config"
)

// NewDB 创建数据库连接
// 设计说明：
// 1. 使用GORM v2作为ORM框架
// 2. 配置连接池参数（MaxOpenConns、MaxIdleConns、ConnMaxLifetime）
// 3. 开发环境开启SQL日志，生产环境关闭
// 4. database.auto_migrate 打开时自动迁移表结构
func NewDB(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.Database.DSN()

	logLevel := logger.Silent
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info // 开发环境打印SQL
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true, // 唯一索引冲突转换为gorm.ErrDuplicatedKey
		NowFunc: func() time.Time {
			return time.Now()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取SQL DB失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}
	log.Info("数据库连接成功", zap.String("host", cfg.Database.Host), zap.String("db", cfg.Database.DBName))

	if cfg.Database.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	return db, nil
}

// AutoMigrate 自动迁移表结构
// 学习要点：
// 1. AutoMigrate只会创建表、添加字段，不会删除或修改现有字段
// 2. 生产环境应使用版本化的迁移脚本，不要依赖AutoMigrate
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AftersalesModel{},
		&AftersalesLogModel{},
		&RefundOrderModel{},
		&ReturnOrderModel{},
		&ExchangeOrderModel{},
		&OrderLineModel{},
		&SkuPriceModel{},
	)
}

// AftersalesModel GORM售后单模型
// 教学要点:
// 1. 金额使用decimal(12,2)列,对应shopspring/decimal(实现了Scanner/Valuer)
// 2. 商品快照、凭证图片、换货地址以JSON文本保存
// 3. (state, auto_process_time, id) 复合索引服务超时扫描的keyset分页
// 4. Version乐观锁
type AftersalesModel struct {
	ID             uint   `gorm:"primaryKey"`
	AftersalesNo   string `gorm:"uniqueIndex;size:32;not null;comment:售后单号"`
	OrderID        string `gorm:"index;size:64;not null;comment:订单号"`
	UserID         uint   `gorm:"index:idx_user_created;not null;comment:买家ID"`
	OrderProductID uint   `gorm:"index;not null;comment:订单明细ID"`
	ProductID      uint   `gorm:"comment:商品ID"`
	SkuID          uint   `gorm:"comment:SKU ID"`

	Type   string `gorm:"size:20;not null;comment:售后类型"`
	Reason string `gorm:"size:30;not null;comment:售后原因"`
	State  string `gorm:"index:idx_timeout,priority:1;size:20;not null;comment:状态"`
	Source string `gorm:"size:10;not null;default:APP;comment:来源"`

	Quantity             int             `gorm:"not null;comment:售后数量"`
	OriginalPrice        decimal.Decimal `gorm:"type:decimal(12,6);not null;comment:原价(单价)"`
	PaidPrice            decimal.Decimal `gorm:"type:decimal(12,6);not null;comment:实付单价"`
	OriginalRefundAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:申请退款金额"`
	ActualRefundAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;comment:实际退款金额"`
	RefundAmountModified bool            `gorm:"not null;default:false"`
	ModifyReason         string          `gorm:"size:255"`
	ModificationCount    int             `gorm:"not null;default:0"`

	ProofImages  string `gorm:"type:text;comment:凭证图片(JSON数组)"`
	Description  string `gorm:"size:500"`
	RejectReason string `gorm:"size:255"`
	ServiceNote  string `gorm:"size:500"`

	LogisticsCompany string `gorm:"size:50"`
	LogisticsNo      string `gorm:"size:64"`

	ExchangeSkuID   uint   `gorm:"comment:换货SKU"`
	ExchangeAddress string `gorm:"type:text;comment:换货收货地址(JSON)"`
	Snapshot        string `gorm:"type:text;comment:商品快照(JSON)"`

	AutoProcessTime *time.Time `gorm:"index:idx_timeout,priority:2;comment:超时自动处理时间"`
	AuditTime       *time.Time `gorm:"precision:3;comment:审核时间"`
	CompletedTime   *time.Time
	CreatedAt       time.Time `gorm:"index:idx_user_created"`
	UpdatedAt       time.Time
	Version         int `gorm:"not null;default:0"`
}

// TableName 指定表名
func (AftersalesModel) TableName() string {
	return "aftersales"
}

// AftersalesLogModel 操作日志(只追加)
type AftersalesLogModel struct {
	ID         uint      `gorm:"primaryKey"`
	CaseID     uint      `gorm:"index;not null"`
	SubOrderNo string    `gorm:"size:32"`
	ActorType  string    `gorm:"size:10;not null"`
	ActorID    uint      `gorm:"not null;default:0"`
	ActorName  string    `gorm:"size:64"`
	Action     string    `gorm:"size:30;not null"`
	FromState  *string   `gorm:"size:20"`
	ToState    *string   `gorm:"size:20"`
	Content    string    `gorm:"size:500"`
	Context    string    `gorm:"type:text;comment:结构化上下文(JSON)"`
	CreatedAt  time.Time `gorm:"index"`
}

// TableName 指定表名
func (AftersalesLogModel) TableName() string {
	return "aftersales_logs"
}

// RefundOrderModel 退款单
type RefundOrderModel struct {
	ID            uint            `gorm:"primaryKey"`
	RefundNo      string          `gorm:"uniqueIndex;size:32;not null"`
	CaseID        uint            `gorm:"index;not null"`
	OrderID       string          `gorm:"size:64;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status        string          `gorm:"size:20;not null"`
	TransactionNo string          `gorm:"size:64"`
	FailureReason string          `gorm:"size:255"`
	RetryCount    int             `gorm:"not null;default:0"`
	ProcessingAt  *time.Time
	SucceededAt   *time.Time
	FailedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName 指定表名
func (RefundOrderModel) TableName() string {
	return "aftersales_refund_orders"
}

// ReturnOrderModel 退货单
// (carrier_code, tracking_no) 索引服务快递轨迹推送
type ReturnOrderModel struct {
	ID             uint   `gorm:"primaryKey"`
	ReturnNo       string `gorm:"uniqueIndex;size:32;not null"`
	CaseID         uint   `gorm:"index;not null"`
	Quantity       int    `gorm:"not null"`
	AddressName    string `gorm:"size:50"`
	AddressPhone   string `gorm:"size:20"`
	AddressDetail  string `gorm:"size:255"`
	CarrierCode    string `gorm:"index:idx_tracking,priority:1;size:20"`
	TrackingNo     string `gorm:"index:idx_tracking,priority:2;size:64"`
	Status         string `gorm:"size:20;not null"`
	InspectionNote string `gorm:"size:500"`
	ShippedAt      *time.Time
	ReceivedAt     *time.Time
	InspectedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName 指定表名
func (ReturnOrderModel) TableName() string {
	return "aftersales_return_orders"
}

// ExchangeOrderModel 换货单
type ExchangeOrderModel struct {
	ID                uint            `gorm:"primaryKey"`
	ExchangeNo        string          `gorm:"uniqueIndex;size:32;not null"`
	CaseID            uint            `gorm:"index;not null"`
	OriginalSkuID     uint            `gorm:"not null"`
	ExchangeSkuID     uint            `gorm:"not null"`
	Quantity          int             `gorm:"not null"`
	OriginalItemPrice decimal.Decimal `gorm:"type:decimal(12,6);not null"`
	ExchangeItemPrice decimal.Decimal `gorm:"type:decimal(12,6);not null"`
	AddressName       string          `gorm:"size:50"`
	AddressPhone      string          `gorm:"size:20"`
	AddressDetail     string          `gorm:"size:255"`
	ReturnCarrier     string          `gorm:"size:20"`
	ReturnTrackingNo  string          `gorm:"size:64"`
	ShipCarrier       string          `gorm:"size:20"`
	ShipTrackingNo    string          `gorm:"size:64"`
	RejectReason      string          `gorm:"size:255"`
	Status            string          `gorm:"size:20;not null"`
	ApprovedAt        *time.Time
	ReturnShippedAt   *time.Time
	ReturnReceivedAt  *time.Time
	ShippedAt         *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName 指定表名
func (ExchangeOrderModel) TableName() string {
	return "aftersales_exchange_orders"
}

// OrderLineModel 订单明细(订单系统同步的只读副本)
// 售后申请在这一行上加 SELECT ... FOR UPDATE,串行化同一明细的并发申请
type OrderLineModel struct {
	ID            uint            `gorm:"primaryKey;comment:订单明细ID"`
	OrderID       string          `gorm:"index;size:64;not null"`
	UserID        uint            `gorm:"index;not null"`
	ProductID     uint            `gorm:"not null"`
	SkuID         uint            `gorm:"not null"`
	ProductCode   string          `gorm:"size:64"`
	ProductName   string          `gorm:"size:200"`
	Quantity      int             `gorm:"not null"`
	OriginalPrice decimal.Decimal `gorm:"type:decimal(12,6);not null"`
	UnitPaidPrice decimal.Decimal `gorm:"type:decimal(12,6);not null"`
	IsGift        bool            `gorm:"not null;default:false"`
}

// TableName 指定表名
func (OrderLineModel) TableName() string {
	return "order_products"
}

// SkuPriceModel SKU当前售价(换货差价使用)
type SkuPriceModel struct {
	SkuID uint            `gorm:"primaryKey;autoIncrement:false"`
	Price decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName 指定表名
func (SkuPriceModel) TableName() string {
	return "sku_prices"
}
