package aftersales

import (
	"context"
	"time"
)

// ListQuery 售后单列表查询条件(零值表示不过滤)
type ListQuery struct {
	UserID   uint
	OrderID  string
	State    State
	Type     CaseType
	Page     int
	PageSize int
}

// TimeoutCursor 超时扫描游标(keyset分页)
// 按 (auto_process_time, id) 升序,下一批从游标之后开始
type TimeoutCursor struct {
	AutoProcessTime time.Time
	ID              uint
}

// Repository 售后单仓储接口
// 教学要点:
// 1. 接口定义在领域层,实现在基础设施层(依赖倒置)
// 2. LockByID 必须在事务中调用(SELECT ... FOR UPDATE)
// 3. Update 按Version做乐观锁,版本不一致返回ErrConcurrentUpdate
type Repository interface {
	// Create 创建售后单,售后单号重复返回ErrDuplicateAftersalesNo
	Create(ctx context.Context, c *Case) error

	// FindByID 根据ID查询
	FindByID(ctx context.Context, id uint) (*Case, error)

	// FindByAftersalesNo 根据业务单号查询
	FindByAftersalesNo(ctx context.Context, no string) (*Case, error)

	// LockByID 加行锁查询
	LockByID(ctx context.Context, id uint) (*Case, error)

	// Update 更新售后单(乐观锁),成功后c.Version加1
	Update(ctx context.Context, c *Case) error

	// List 分页查询
	List(ctx context.Context, q ListQuery) ([]*Case, int64, error)

	// SumActiveClaims 批量查询明细上的有效占用(排除CANCELLED/REJECTED)
	SumActiveClaims(ctx context.Context, orderProductIDs []uint) (map[uint][]ClaimedAmount, error)

	// FindTimeoutBatch 查询已到期的超时候选,cursor为nil从头开始
	FindTimeoutBatch(ctx context.Context, now time.Time, cursor *TimeoutCursor, limit int) ([]*Case, error)
}

// LogRepository 操作日志仓储
// 只追加,不提供更新方法
type LogRepository interface {
	Append(ctx context.Context, logs ...*Log) error
	ListByCase(ctx context.Context, caseID uint) ([]*Log, error)
	// DeleteBefore 保留期清理,返回删除行数
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
