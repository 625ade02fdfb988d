package player

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"GuildFM/model"
)

// Engine 外部播放引擎。*lavalink.Node 实现了该接口。
type Engine interface {
	Connect(ctx context.Context, guildID string, voice model.VoiceState) error
	Play(ctx context.Context, guildID string, track *model.Track) error
	Stop(ctx context.Context, guildID string) error
	Pause(ctx context.Context, guildID string, paused bool) error
	Seek(ctx context.Context, guildID string, positionMs int64) error
	Disconnect(ctx context.Context, guildID string) error
	State(guildID string) (model.PlayerState, bool)
	Search(ctx context.Context, query string, source model.Source) (model.SearchResult, error)
}

var (
	ErrNoSession      = errors.New("no active session for guild")
	ErrNotConnected   = errors.New("not connected to voice")
	ErrNoVoiceState   = errors.New("voice state not received for guild")
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoResults      = errors.New("no tracks found")
)

// PlaybackError 连接或播放失败，Message 可以直接展示给用户
type PlaybackError struct {
	Op      string
	Message string
	Err     error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// EndReason 歌曲结束原因
type EndReason int

const (
	EndFinished EndReason = iota
	EndStopped
	EndLoadFailed
	EndCleanup
	EndReplaced
	EndUnknown
)

// ParseEndReason 解析引擎给出的结束原因，大小写和下划线不敏感
func ParseEndReason(s string) EndReason {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "finished":
		return EndFinished
	case "stopped":
		return EndStopped
	case "loadfailed":
		return EndLoadFailed
	case "cleanup":
		return EndCleanup
	case "replaced":
		return EndReplaced
	default:
		return EndUnknown
	}
}

func (r EndReason) String() string {
	switch r {
	case EndFinished:
		return "FINISHED"
	case EndStopped:
		return "STOPPED"
	case EndLoadFailed:
		return "LOAD_FAILED"
	case EndCleanup:
		return "CLEANUP"
	case EndReplaced:
		return "REPLACED"
	default:
		return "UNKNOWN"
	}
}

// MayStartNext 只有正常结束和被停止时才推进队列
func (r EndReason) MayStartNext() bool {
	return r == EndFinished || r == EndStopped
}
