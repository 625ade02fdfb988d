package lyrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"GuildFM/logger"
	"GuildFM/model"
)

const (
	DefaultTick   = 100 * time.Millisecond
	DefaultOffset = 500 * time.Millisecond
)

// PositionSource 读取会话的实时播放状态
type PositionSource interface {
	State(guildID string) (model.PlayerState, bool)
}

// Dispatcher 接收到期的歌词行。实现不应长时间阻塞，失败自行记录。
type Dispatcher interface {
	DispatchLine(ctx context.Context, guildID string, track *model.Track, line Line)
}

// DispatcherFunc 函数适配器
type DispatcherFunc func(ctx context.Context, guildID string, track *model.Track, line Line)

func (f DispatcherFunc) DispatchLine(ctx context.Context, guildID string, track *model.Track, line Line) {
	f(ctx, guildID, track, line)
}

// Scheduler 为每个歌词会话运行一个独立的定时循环
type Scheduler struct {
	positions PositionSource

	tick   atomic.Int64 // time.Duration
	offset atomic.Int64 // time.Duration
}

// NewScheduler 创建调度器，使用默认的 100ms 间隔和 0.5s 提前量
func NewScheduler(positions PositionSource) *Scheduler {
	s := &Scheduler{positions: positions}
	s.SetTiming(DefaultTick, DefaultOffset)
	return s
}

// SetTiming 修改间隔和提前量，运行中的循环在下一次 tick 生效
func (s *Scheduler) SetTiming(tick, offset time.Duration) {
	if tick <= 0 {
		tick = DefaultTick
	}
	if offset < 0 {
		offset = 0
	}
	s.tick.Store(int64(tick))
	s.offset.Store(int64(offset))
}

// Offset 当前提前量
func (s *Scheduler) Offset() time.Duration {
	return time.Duration(s.offset.Load())
}

// Start 启动会话的推送循环，到期的行交给 d，返回的函数用于停止。
// 循环在 ctx 结束、stop 被调用或所有行推送完毕后退出。
func (s *Scheduler) Start(ctx context.Context, guildID string, sess *Session, d Dispatcher) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx, guildID, sess, d)
	return cancel
}

func (s *Scheduler) run(ctx context.Context, guildID string, sess *Session, d Dispatcher) {
	interval := time.Duration(s.tick.Load())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Debug("lyrics loop started", logger.Guild(guildID), logger.Int("lines", sess.Len()))

	for {
		select {
		case <-ctx.Done():
			logger.Debug("lyrics loop stopped", logger.Guild(guildID))
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if err := s.Step(ctx, guildID, sess, d); err != nil {
				logger.Error("lyrics tick failed", logger.Guild(guildID), logger.ErrorField(err))
			}
			if sess.Done() {
				logger.Debug("lyrics finished", logger.Guild(guildID))
				return
			}
			if next := time.Duration(s.tick.Load()); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Step 执行一次 tick：最多推送一行。panic 被转换为错误返回，不会终止循环。
func (s *Scheduler) Step(ctx context.Context, guildID string, sess *Session, d Dispatcher) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in lyrics tick: %v", r)
		}
	}()

	if sess == nil || sess.Len() == 0 {
		return nil
	}
	state, ok := s.positions.State(guildID)
	if !ok || !state.Active() {
		return nil
	}

	line, due := sess.Advance(state.PositionSeconds(), s.Offset().Seconds())
	if !due {
		return nil
	}
	d.DispatchLine(ctx, guildID, sess.Track(), line)
	return nil
}
