package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/xiebiao/aftersales/internal/domain/aftersales"
	apperrors "github.com/xiebiao/aftersales/pkg/errors"
)

// logRepository 操作日志仓储(只追加)
type logRepository struct {
	conn
}

// NewLogRepository 创建日志仓储
func NewLogRepository(db *gorm.DB) aftersales.LogRepository {
	return &logRepository{conn{db: db}}
}

// Append 批量插入
// 生成SQL: INSERT INTO aftersales_logs (...) VALUES (...), (...)
func (r *logRepository) Append(ctx context.Context, logs ...*aftersales.Log) error {
	if len(logs) == 0 {
		return nil
	}
	models := make([]*AftersalesLogModel, 0, len(logs))
	for _, l := range logs {
		m, err := toLogModel(l)
		if err != nil {
			return apperrors.Wrap(err, "日志序列化失败")
		}
		models = append(models, m)
	}
	if err := r.getDB(ctx).Create(&models).Error; err != nil {
		return apperrors.Wrap(err, "写入售后日志失败")
	}
	for i, m := range models {
		logs[i].ID = m.ID
	}
	return nil
}

// ListByCase 按写入顺序返回
func (r *logRepository) ListByCase(ctx context.Context, caseID uint) ([]*aftersales.Log, error) {
	var models []AftersalesLogModel
	if err := r.getDB(ctx).Where("case_id = ?", caseID).Order("id ASC").Find(&models).Error; err != nil {
		return nil, apperrors.Wrap(err, "查询售后日志失败")
	}
	logs := make([]*aftersales.Log, 0, len(models))
	for i := range models {
		l, err := toLogEntity(&models[i])
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// DeleteBefore 保留期清理
func (r *logRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.getDB(ctx).Where("created_at < ?", cutoff).Delete(&AftersalesLogModel{})
	if result.Error != nil {
		return 0, apperrors.Wrap(result.Error, "清理售后日志失败")
	}
	return result.RowsAffected, nil
}

func toLogModel(l *aftersales.Log) (*AftersalesLogModel, error) {
	var ctxJSON string
	if len(l.Context) > 0 {
		var err error
		if ctxJSON, err = toJSON(l.Context); err != nil {
			return nil, err
		}
	}
	return &AftersalesLogModel{
		ID:         l.ID,
		CaseID:     l.CaseID,
		SubOrderNo: l.SubOrderNo,
		ActorType:  string(l.Actor.Type),
		ActorID:    l.Actor.ID,
		ActorName:  l.Actor.Name,
		Action:     string(l.Action),
		FromState:  stateToString(l.FromState),
		ToState:    stateToString(l.ToState),
		Content:    l.Content,
		Context:    ctxJSON,
		CreatedAt:  l.CreatedAt,
	}, nil
}

func toLogEntity(m *AftersalesLogModel) (*aftersales.Log, error) {
	l := &aftersales.Log{
		ID:         m.ID,
		CaseID:     m.CaseID,
		SubOrderNo: m.SubOrderNo,
		Actor: aftersales.Actor{
			Type: aftersales.ActorType(m.ActorType),
			ID:   m.ActorID,
			Name: m.ActorName,
		},
		Action:    aftersales.LogAction(m.Action),
		FromState: stringToState(m.FromState),
		ToState:   stringToState(m.ToState),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if err := fromJSON(m.Context, &l.Context); err != nil {
		return nil, apperrors.Wrap(err, "解析日志上下文失败")
	}
	return l, nil
}

func stateToString(s *aftersales.State) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}

func stringToState(s *string) *aftersales.State {
	if s == nil {
		return nil
	}
	v := aftersales.State(*s)
	return &v
}
