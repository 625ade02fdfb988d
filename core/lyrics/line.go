package lyrics

import (
	"sort"
	"sync"

	"GuildFM/model"
)

// Line 一行歌词
type Line struct {
	Timestamp  float64 `json:"timestamp"` // 秒
	Text       string  `json:"text"`
	dispatched bool
}

// Dispatched 是否已推送
func (l *Line) Dispatched() bool {
	return l.dispatched
}

// sortLines 按时间戳升序排列，时间相同保持原顺序
func sortLines(lines []Line) {
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Timestamp < lines[j].Timestamp
	})
}

// Session 单首歌曲的歌词推送状态
//
// dispatched 标记一旦置位就不会清除：进度回退（用户 seek）时已推送的行不会重发。
type Session struct {
	mu     sync.Mutex
	lines  []Line
	cursor int
	track  *model.Track
}

// NewSession 创建歌词会话，lines 会被复制并排序
func NewSession(track *model.Track, lines []Line) *Session {
	cp := make([]Line, len(lines))
	copy(cp, lines)
	for i := range cp {
		cp[i].dispatched = false
	}
	sortLines(cp)
	return &Session{lines: cp, track: track}
}

// Track 关联的歌曲
func (s *Session) Track() *model.Track {
	return s.track
}

// Len 歌词行数
func (s *Session) Len() int {
	return len(s.lines)
}

// Cursor 下一行待推送的位置
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Done 所有行都已经越过
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= len(s.lines)
}

// Advance 用当前播放位置推进一次，每次最多返回一行。
// 游标处的行在 position >= timestamp - offset 时到期；未到期则停止扫描，
// 因为歌词按时间排序，后面的行不可能更早到期。
func (s *Session) Advance(position, offset float64) (Line, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.cursor < len(s.lines) {
		line := &s.lines[s.cursor]
		if line.dispatched {
			s.cursor++
			continue
		}
		if position < line.Timestamp-offset {
			return Line{}, false
		}
		line.dispatched = true
		s.cursor++
		return *line, true
	}
	return Line{}, false
}

// FastForward 中途加载歌词时跳过已经过去的行，只保留最近到期的一行待推送。
// 返回被跳过的行数。
func (s *Session) FastForward(position, offset float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := -1
	for i := s.cursor; i < len(s.lines); i++ {
		if position < s.lines[i].Timestamp-offset {
			break
		}
		last = i
	}
	skipped := 0
	for i := s.cursor; i < last; i++ {
		if !s.lines[i].dispatched {
			s.lines[i].dispatched = true
			skipped++
		}
	}
	if last > s.cursor {
		s.cursor = last
	}
	return skipped
}
