package memory

import (
	"context"
	"sort"
	"time"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// AftersalesRepository 售后单仓储内存实现
type AftersalesRepository struct {
	store *Store
}

// NewAftersalesRepository 创建仓储
func NewAftersalesRepository(store *Store) aftersales.Repository {
	return &AftersalesRepository{store: store}
}

// Create 创建售后单
func (r *AftersalesRepository) Create(_ context.Context, c *aftersales.Case) error {
	return r.store.write(func(d *dataset) error {
		for _, existing := range d.cases {
			if existing.AftersalesNo == c.AftersalesNo {
				return aftersales.ErrDuplicateAftersalesNo
			}
		}
		d.caseSeq++
		c.ID = d.caseSeq
		d.cases[c.ID] = c.Clone()
		return nil
	})
}

// FindByID 根据ID查询
func (r *AftersalesRepository) FindByID(_ context.Context, id uint) (*aftersales.Case, error) {
	var found *aftersales.Case
	err := r.store.read(func(d *dataset) error {
		c, ok := d.cases[id]
		if !ok {
			return aftersales.ErrCaseNotFound
		}
		found = c.Clone()
		return nil
	})
	return found, err
}

// FindByAftersalesNo 根据业务单号查询
func (r *AftersalesRepository) FindByAftersalesNo(_ context.Context, no string) (*aftersales.Case, error) {
	var found *aftersales.Case
	err := r.store.read(func(d *dataset) error {
		for _, c := range d.cases {
			if c.AftersalesNo == no {
				found = c.Clone()
				return nil
			}
		}
		return aftersales.ErrCaseNotFound
	})
	return found, err
}

// LockByID 事务已串行化,等同FindByID
func (r *AftersalesRepository) LockByID(ctx context.Context, id uint) (*aftersales.Case, error) {
	return r.FindByID(ctx, id)
}

// Update 乐观锁更新
func (r *AftersalesRepository) Update(_ context.Context, c *aftersales.Case) error {
	return r.store.write(func(d *dataset) error {
		existing, ok := d.cases[c.ID]
		if !ok {
			return aftersales.ErrCaseNotFound
		}
		if existing.Version != c.Version {
			return apperrors.ErrConcurrentUpdate
		}
		c.Version++
		d.cases[c.ID] = c.Clone()
		return nil
	})
}

// List 分页查询,按创建时间倒序
func (r *AftersalesRepository) List(_ context.Context, q aftersales.ListQuery) ([]*aftersales.Case, int64, error) {
	var matched []*aftersales.Case
	_ = r.store.read(func(d *dataset) error {
		for _, c := range d.cases {
			if q.UserID != 0 && c.UserID != q.UserID {
				continue
			}
			if q.OrderID != "" && c.OrderID != q.OrderID {
				continue
			}
			if q.State != "" && c.State != q.State {
				continue
			}
			if q.Type != "" && c.Type != q.Type {
				continue
			}
			matched = append(matched, c.Clone())
		}
		return nil
	})
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	offset := (q.Page - 1) * q.PageSize
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []*aftersales.Case{}, total, nil
	}
	end := offset + q.PageSize
	if q.PageSize <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// SumActiveClaims 有效售后占用
func (r *AftersalesRepository) SumActiveClaims(_ context.Context, orderProductIDs []uint) (map[uint][]aftersales.ClaimedAmount, error) {
	wanted := make(map[uint]bool, len(orderProductIDs))
	for _, id := range orderProductIDs {
		wanted[id] = true
	}
	result := make(map[uint][]aftersales.ClaimedAmount)
	_ = r.store.read(func(d *dataset) error {
		for _, c := range d.cases {
			if wanted[c.OrderProductID] && c.State.CountsTowardClaims() {
				result[c.OrderProductID] = append(result[c.OrderProductID], c.ClaimedAmount())
			}
		}
		return nil
	})
	return result, nil
}

// FindTimeoutBatch 按 (auto_process_time, id) 升序取到期的售后单
func (r *AftersalesRepository) FindTimeoutBatch(_ context.Context, now time.Time, cursor *aftersales.TimeoutCursor, limit int) ([]*aftersales.Case, error) {
	timeoutStates := make(map[aftersales.State]bool)
	for _, st := range aftersales.TimeoutStates {
		timeoutStates[st] = true
	}

	var due []*aftersales.Case
	_ = r.store.read(func(d *dataset) error {
		for _, c := range d.cases {
			if c.AutoProcessTime == nil || c.AutoProcessTime.After(now) || !timeoutStates[c.State] {
				continue
			}
			if cursor != nil && !afterCursor(c, cursor) {
				continue
			}
			due = append(due, c.Clone())
		}
		return nil
	})
	sort.Slice(due, func(i, j int) bool {
		ti, tj := *due[i].AutoProcessTime, *due[j].AutoProcessTime
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return due[i].ID < due[j].ID
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func afterCursor(c *aftersales.Case, cursor *aftersales.TimeoutCursor) bool {
	t := *c.AutoProcessTime
	if t.Equal(cursor.AutoProcessTime) {
		return c.ID > cursor.ID
	}
	return t.After(cursor.AutoProcessTime)
}

// LogRepository 操作日志内存实现
type LogRepository struct {
	store *Store
}

// NewLogRepository 创建日志仓储
func NewLogRepository(store *Store) aftersales.LogRepository {
	return &LogRepository{store: store}
}

// Append 追加日志
func (r *LogRepository) Append(_ context.Context, logs ...*aftersales.Log) error {
	return r.store.write(func(d *dataset) error {
		for _, l := range logs {
			d.logSeq++
			l.ID = d.logSeq
			d.logs = append(d.logs, cloneLog(l))
		}
		return nil
	})
}

// ListByCase 按时间顺序返回
func (r *LogRepository) ListByCase(_ context.Context, caseID uint) ([]*aftersales.Log, error) {
	var result []*aftersales.Log
	_ = r.store.read(func(d *dataset) error {
		for _, l := range d.logs {
			if l.CaseID == caseID {
				result = append(result, cloneLog(l))
			}
		}
		return nil
	})
	return result, nil
}

// DeleteBefore 删除保留期之前的日志
func (r *LogRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.store.write(func(d *dataset) error {
		kept := d.logs[:0]
		for _, l := range d.logs {
			if l.CreatedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, l)
		}
		d.logs = kept
		return nil
	})
	return deleted, err
}
