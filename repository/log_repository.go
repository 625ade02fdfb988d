package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"GuildFM/core/retention"
	"GuildFM/model"
)

// LogTable 基于 GORM 的只追加日志表，实现 retention.Table
type LogTable[T any, PT interface {
	*T
	retention.Row
}] struct {
	db   *gorm.DB
	name string
}

// PlayHistoryTable play_history 表
type PlayHistoryTable = LogTable[model.PlayHistory, *model.PlayHistory]

// LyricsLogTable lyrics_logs 表
type LyricsLogTable = LogTable[model.LyricsLog, *model.LyricsLog]

// NewPlayHistoryTable 创建播放记录表
func NewPlayHistoryTable(db *gorm.DB) *PlayHistoryTable {
	return &PlayHistoryTable{db: db, name: model.PlayHistory{}.TableName()}
}

// NewLyricsLogTable 创建歌词记录表
func NewLyricsLogTable(db *gorm.DB) *LyricsLogTable {
	return &LyricsLogTable{db: db, name: model.LyricsLog{}.TableName()}
}

// Name 表名
func (r *LogTable[T, PT]) Name() string {
	return r.name
}

// Insert 写入一行，row 必须是该表的模型指针
func (r *LogTable[T, PT]) Insert(ctx context.Context, row retention.Row) error {
	rec, ok := row.(PT)
	if !ok {
		return fmt.Errorf("table %s: unexpected row type %T", r.name, row)
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", r.name, err)
	}
	return nil
}

// Count 行数
func (r *LogTable[T, PT]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(PT(new(T))).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", r.name, err)
	}
	return n, nil
}

// Oldest 按 (created_at, id) 升序返回最旧的 limit 行
func (r *LogTable[T, PT]) Oldest(ctx context.Context, limit int) ([]retention.Row, error) {
	var recs []T
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select oldest from %s: %w", r.name, err)
	}

	rows := make([]retention.Row, len(recs))
	for i := range recs {
		rows[i] = PT(&recs[i])
	}
	return rows, nil
}

// Delete 按 ID 删除
func (r *LogTable[T, PT]) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(PT(new(T))).Error; err != nil {
		return fmt.Errorf("failed to delete from %s: %w", r.name, err)
	}
	return nil
}

// Recent 返回会话最近的 limit 条记录，新的在前
func (r *LogTable[T, PT]) Recent(ctx context.Context, guildID string, limit int) ([]T, error) {
	var recs []T
	err := r.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", r.name, err)
	}
	return recs, nil
}
