package retention

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"GuildFM/logger"
)

const (
	DefaultInterval  = 100
	DefaultBatchSize = 1000
)

// Row 日志表中的一行
type Row interface {
	RowID() int64
	CreatedTime() time.Time
}

// Table 只追加的日志表
type Table interface {
	Name() string
	Insert(ctx context.Context, row Row) error
	Count(ctx context.Context) (int64, error)
	// Oldest 按 (created_at, id) 升序返回最旧的 limit 行
	Oldest(ctx context.Context, limit int) ([]Row, error)
	Delete(ctx context.Context, ids []int64) error
}

// Archiver 删除前保存被清理的行，可选
type Archiver interface {
	Archive(ctx context.Context, table string, rows []Row) error
}

type tableState struct {
	table  Table
	cap    atomic.Int64
	writes atomic.Int64
	// 同一张表同一时间只跑一次清理
	cleaning sync.Mutex
}

// Manager 控制日志表的行数上限。
// 每写入 interval 次检查一次行数，超过上限时按最旧优先分批删除；
// 两次检查之间表最多超出 interval 行。
type Manager struct {
	interval  atomic.Int64
	batchSize atomic.Int64
	archiver  Archiver

	mu     sync.RWMutex
	tables map[string]*tableState
}

// NewManager 创建管理器，archiver 可以为 nil
func NewManager(interval, batchSize int, archiver Archiver) *Manager {
	m := &Manager{
		archiver: archiver,
		tables:   make(map[string]*tableState),
	}
	m.SetLimits(interval, batchSize)
	return m
}

// SetLimits 修改检查间隔和批大小
func (m *Manager) SetLimits(interval, batchSize int) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	m.interval.Store(int64(interval))
	m.batchSize.Store(int64(batchSize))
}

// Register 登记一张表和它的行数上限
func (m *Manager) Register(table Table, maxRows int64) {
	st := &tableState{table: table}
	st.cap.Store(maxRows)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table.Name()] = st
}

// SetCap 修改表的上限，未登记的表返回错误
func (m *Manager) SetCap(name string, maxRows int64) error {
	st, err := m.state(name)
	if err != nil {
		return err
	}
	st.cap.Store(maxRows)
	logger.Info("retention cap updated", logger.String("table", name), logger.Int64("cap", maxRows))
	return nil
}

// Cap 返回表当前的上限
func (m *Manager) Cap(name string) (int64, error) {
	st, err := m.state(name)
	if err != nil {
		return 0, err
	}
	return st.cap.Load(), nil
}

// Tables 已登记的表名
func (m *Manager) Tables() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

func (m *Manager) state(name string) (*tableState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("retention: table %q not registered", name)
	}
	return st, nil
}

// Write 写入一行并在需要时触发清理。写入失败只记日志，不会返回错误给调用方。
func (m *Manager) Write(ctx context.Context, tableName string, row Row) {
	st, err := m.state(tableName)
	if err != nil {
		logger.Warn("log write to unknown table", logger.String("table", tableName))
		return
	}

	if err := st.table.Insert(ctx, row); err != nil {
		logger.Warn("log write failed", logger.String("table", tableName), logger.ErrorField(err))
		return
	}

	n := st.writes.Add(1)
	if n%m.interval.Load() != 0 {
		return
	}
	if _, err := m.cleanup(ctx, st); err != nil {
		logger.Warn("log cleanup failed", logger.String("table", tableName), logger.ErrorField(err))
	}
}

// Cleanup 立即对一张表执行一次清理，返回删除的行数
func (m *Manager) Cleanup(ctx context.Context, tableName string) (int64, error) {
	st, err := m.state(tableName)
	if err != nil {
		return 0, err
	}
	return m.cleanup(ctx, st)
}

// CleanupAll 清理所有表，单表失败不影响其他表
func (m *Manager) CleanupAll(ctx context.Context) map[string]int64 {
	result := make(map[string]int64)
	for _, name := range m.Tables() {
		deleted, err := m.Cleanup(ctx, name)
		if err != nil {
			logger.Warn("log cleanup failed", logger.String("table", name), logger.ErrorField(err))
		}
		result[name] = deleted
	}
	return result
}

func (m *Manager) cleanup(ctx context.Context, st *tableState) (int64, error) {
	st.cleaning.Lock()
	defer st.cleaning.Unlock()

	name := st.table.Name()
	limit := st.cap.Load()
	batch := int(m.batchSize.Load())

	count, err := st.table.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", name, err)
	}
	if count <= limit {
		return 0, nil
	}

	var deleted int64
	for count > limit {
		excess := count - limit
		n := batch
		if excess < int64(n) {
			n = int(excess)
		}

		rows, err := st.table.Oldest(ctx, n)
		if err != nil {
			return deleted, fmt.Errorf("select oldest %s: %w", name, err)
		}
		if len(rows) == 0 {
			break
		}

		if m.archiver != nil {
			if err := m.archiver.Archive(ctx, name, rows); err != nil {
				logger.Warn("archive before cleanup failed", logger.String("table", name), logger.ErrorField(err))
			}
		}

		ids := make([]int64, len(rows))
		for i, r := range rows {
			ids[i] = r.RowID()
		}
		if err := st.table.Delete(ctx, ids); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", name, err)
		}

		deleted += int64(len(ids))
		count -= int64(len(ids))
	}

	logger.Info("log table trimmed",
		logger.String("table", name),
		logger.Int64("deleted", deleted),
		logger.Int64("cap", limit))
	return deleted, nil
}
