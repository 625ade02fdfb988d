package player

import (
	"sort"
	"sync"
)

// Registry 显式管理会话：只有 Open 会创建，Close 会销毁
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Open 返回已有会话或新建一个，created 表示是否新建
func (r *Registry) Open(guildID string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok {
		return s, false
	}
	s = newSession(guildID)
	r.sessions[guildID] = s
	return s, true
}

// Get 查找会话，不会创建
func (r *Registry) Get(guildID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[guildID]
	return s, ok
}

// Close 移除并关闭会话。只有 s 仍是登记的会话时才会移除。
func (r *Registry) Close(s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[s.guildID]; ok && cur == s {
		delete(r.sessions, s.guildID)
	}
	r.mu.Unlock()
	s.close()
}

// Active 判断 s 是否仍是 guild 当前登记的会话
func (r *Registry) Active(s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.sessions[s.guildID]
	return ok && cur == s
}

// GuildIDs 所有会话，按 ID 排序
func (r *Registry) GuildIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 会话数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
