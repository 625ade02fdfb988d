package queue

import (
	"GuildFM/model"
)

// Queue 单个会话的播放队列
//
// 队列本身不加锁：同一会话的所有变更都由该会话唯一的事件流串行执行。
type Queue struct {
	current  *model.Track
	pending  []*model.Track
	history  []*model.Track
	loopMode model.LoopMode
}

// New 创建空队列
func New() *Queue {
	return &Queue{}
}

// Add 追加到待播列表末尾
func (q *Queue) Add(track *model.Track) {
	q.pending = append(q.pending, track)
}

// Start 直接把一首歌设为当前曲目（空闲时直接播放的情况）
// 原来的当前曲目进入历史，保证每首歌只出现在一处。
func (q *Queue) Start(track *model.Track) {
	if q.current != nil && q.current != track {
		q.history = append(q.history, q.current)
	}
	q.current = track
}

// GetNext 选出下一首要播放的歌曲，返回 nil 表示队列已耗尽
func (q *Queue) GetNext() *model.Track {
	if q.loopMode == model.LoopTrack && q.current != nil {
		return q.current
	}

	if len(q.pending) == 0 && q.loopMode == model.LoopQueue && len(q.history) > 0 {
		q.pending = append(q.pending, q.history...)
		q.history = nil
	}

	if len(q.pending) == 0 {
		return nil
	}

	next := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	if q.current != nil {
		q.history = append(q.history, q.current)
	}
	q.current = next
	return next
}

// Retire 当前曲目移入历史，没有当前曲目
func (q *Queue) Retire() {
	if q.current != nil {
		q.history = append(q.history, q.current)
		q.current = nil
	}
}

// Clear 清空所有状态（循环模式保留）
func (q *Queue) Clear() {
	q.current = nil
	q.pending = nil
	q.history = nil
}

// SetLoopMode 设置循环模式
func (q *Queue) SetLoopMode(mode model.LoopMode) {
	q.loopMode = mode
}

// LoopMode 当前循环模式
func (q *Queue) LoopMode() model.LoopMode {
	return q.loopMode
}

// Current 当前曲目
func (q *Queue) Current() *model.Track {
	return q.current
}

// Pending 待播列表的副本
func (q *Queue) Pending() []*model.Track {
	out := make([]*model.Track, len(q.pending))
	copy(out, q.pending)
	return out
}

// History 已播列表的副本（最早的在前）
func (q *Queue) History() []*model.Track {
	out := make([]*model.Track, len(q.history))
	copy(out, q.history)
	return out
}

// Len 待播数量
func (q *Queue) Len() int {
	return len(q.pending)
}

// HistoryLen 已播数量
func (q *Queue) HistoryLen() int {
	return len(q.history)
}

// Empty 没有当前曲目也没有待播曲目
func (q *Queue) Empty() bool {
	return q.current == nil && len(q.pending) == 0
}

// Snapshot 队列状态快照，State 和 Lyrics 由调用方填写
func (q *Queue) Snapshot(guildID string) model.QueueSnapshot {
	return model.QueueSnapshot{
		GuildID:  guildID,
		LoopMode: q.loopMode.String(),
		Current:  q.current,
		Pending:  q.Pending(),
		History:  q.History(),
	}
}
