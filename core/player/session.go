package player

import (
	"context"
	"sync"
	"time"

	"GuildFM/core/lyrics"
	"GuildFM/core/queue"
	"GuildFM/model"
)

const mailboxSize = 64

// State 会话的播放状态
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StatePaused
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "idle"
	}
}

// Session 一个服务器的播放会话。
// 除 guildID 外的字段只能在会话自己的 mailbox 协程中访问。
type Session struct {
	guildID string

	queue     *queue.Queue
	state     State
	connected bool

	lyricsEnabled bool
	lyricsChannel string
	lyrics        *lyrics.Session
	stopLyrics    func()
	lyricsGen     uint64

	// 刚由 Play 发起、等待引擎确认开始的歌曲
	pendingStart *model.Track

	graceTimer *time.Timer
	graceGen   uint64

	mailbox   chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(guildID string) *Session {
	s := &Session{
		guildID: guildID,
		queue:   queue.New(),
		mailbox: make(chan func(), mailboxSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// GuildID 会话所属服务器
func (s *Session) GuildID() string {
	return s.guildID
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.mailbox:
			// 关闭后排队的任务全部丢弃
			if s.closed() {
				return
			}
			fn()
		case <-s.done:
			return
		}
	}
}

// submit 投递任务，会话已关闭时返回 false
func (s *Session) submit(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do 投递任务并等待结果
func (s *Session) do(ctx context.Context, fn func() error) error {
	started := make(chan struct{})
	result := make(chan error, 1)
	if !s.submit(func() {
		close(started)
		result <- fn()
	}) {
		return ErrNoSession
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		// 会话只在 mailbox 中关闭：任务要么已经开始（可能正是它关闭了会话），要么永远不会执行
		select {
		case <-started:
			return <-result
		default:
			return ErrNoSession
		}
	}
}

// closed 是否已关闭
func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
