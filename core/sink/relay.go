package sink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"GuildFM/logger"
)

const (
	defaultQueueSize = 64
	// Discord Webhook 限制约为每 2 秒 5 条
	defaultInterval = 400 * time.Millisecond
	defaultBurst    = 5
)

// DeliveryFunc 投递成功后的回调
type DeliveryFunc func(guildID string, msg Message)

type job struct {
	channelID string
	msg       Message
	gen       uint64
}

type worker struct {
	jobs    chan job
	limiter *rate.Limiter
	gen     atomic.Uint64 // Flush 之后旧代数的消息不再发送
	ctx     context.Context
	cancel  context.CancelFunc
}

// Relay 按会话排队异步投递消息。同一会话内保持顺序，入队永不阻塞。
type Relay struct {
	cache     *Cache
	onDeliver DeliveryFunc
	interval  time.Duration
	burst     int
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	workers map[string]*worker
}

// RelayOption 配置项
type RelayOption func(*Relay)

// WithRate 每个会话的发送速率
func WithRate(interval time.Duration, burst int) RelayOption {
	return func(r *Relay) {
		r.interval = interval
		r.burst = burst
	}
}

// WithQueueSize 每个会话的队列长度，满了之后新消息被丢弃
func WithQueueSize(n int) RelayOption {
	return func(r *Relay) {
		r.queueSize = n
	}
}

// WithDeliveryHook 每条消息投递成功后调用
func WithDeliveryHook(fn DeliveryFunc) RelayOption {
	return func(r *Relay) {
		r.onDeliver = fn
	}
}

// NewRelay 创建投递器
func NewRelay(cache *Cache, opts ...RelayOption) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Relay{
		cache:     cache,
		interval:  defaultInterval,
		burst:     defaultBurst,
		queueSize: defaultQueueSize,
		ctx:       ctx,
		cancel:    cancel,
		workers:   make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enqueue 把消息放进会话队列。ctx 已取消、队列已满或 Relay 已关闭时返回 false。
// ctx 在锁内检查：调用方先取消 ctx 再 Flush，就不会有消息漏进新的代数。
func (r *Relay) Enqueue(ctx context.Context, guildID, channelID string, msg Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil || ctx.Err() != nil {
		return false
	}

	w, ok := r.workers[guildID]
	if !ok {
		wctx, cancel := context.WithCancel(r.ctx)
		w = &worker{
			jobs:    make(chan job, r.queueSize),
			limiter: rate.NewLimiter(rate.Every(r.interval), r.burst),
			ctx:     wctx,
			cancel:  cancel,
		}
		r.workers[guildID] = w
		r.wg.Add(1)
		go r.run(guildID, w)
	}

	select {
	case w.jobs <- job{channelID: channelID, msg: msg, gen: w.gen.Load()}:
		return true
	default:
		logger.Warn("sink queue full, dropping message", logger.Guild(guildID))
		return false
	}
}

// Flush 丢弃会话已排队但还没发送的消息，投递协程保留
func (r *Relay) Flush(guildID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[guildID]
	if !ok {
		return 0
	}
	w.gen.Add(1)
	n := 0
	for {
		select {
		case <-w.jobs:
			n++
		default:
			if n > 0 {
				logger.Debug("sink backlog flushed", logger.Guild(guildID), logger.Int("messages", n))
			}
			return n
		}
	}
}

// Forget 停止会话的投递协程并丢弃未发送的消息
func (r *Relay) Forget(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[guildID]; ok {
		w.gen.Add(1)
		w.cancel()
		close(w.jobs)
		delete(r.workers, guildID)
	}
}

// Close 停止所有投递，丢弃未发送的消息
func (r *Relay) Close() {
	r.mu.Lock()
	r.cancel()
	for id, w := range r.workers {
		w.cancel()
		close(w.jobs)
		delete(r.workers, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Relay) run(guildID string, w *worker) {
	defer r.wg.Done()
	defer w.cancel()
	for j := range w.jobs {
		if j.gen != w.gen.Load() {
			continue
		}
		if err := w.limiter.Wait(w.ctx); err != nil {
			return
		}
		// 等待限速期间可能被 Flush
		if j.gen != w.gen.Load() {
			continue
		}
		if err := r.deliver(w.ctx, guildID, j); err != nil {
			if w.ctx.Err() != nil {
				return
			}
			logger.Warn("sink delivery failed", logger.Guild(guildID), logger.ErrorField(err))
			continue
		}
		if r.onDeliver != nil {
			r.onDeliver(guildID, j.msg)
		}
	}
}

// deliver 发送一条消息，目标失效时重建一次再重试
func (r *Relay) deliver(ctx context.Context, guildID string, j job) error {
	for attempt := 0; attempt < 2; attempt++ {
		s, err := r.cache.Get(ctx, guildID, j.channelID)
		if err != nil {
			return err
		}
		err = s.Send(ctx, j.msg)
		if !errors.Is(err, ErrInvalidSink) {
			return err
		}
		logger.Info("sink invalid, recreating", logger.Guild(guildID))
		r.cache.Invalidate(guildID)
	}
	return ErrInvalidSink
}
