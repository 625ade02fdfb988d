package sink

import (
	"context"
	"errors"
	"sync"

	"GuildFM/logger"
)

// ErrInvalidSink 推送目标已失效（例如 Webhook 被删除），需要重新创建
var ErrInvalidSink = errors.New("sink is no longer valid")

// Message 一条推送消息
type Message struct {
	Text      string
	Username  string
	AvatarURL string
}

// Sink 一个频道的推送目标
type Sink interface {
	Send(ctx context.Context, msg Message) error
	// ShowSearching 发送临时提示消息，返回的 remove 用于删除它
	ShowSearching(ctx context.Context, msg Message) (remove func(context.Context) error, err error)
}

// Factory 为频道创建推送目标
type Factory interface {
	Create(ctx context.Context, channelID string) (Sink, error)
}

// slot 一个会话的推送目标，mu 串行化同一会话的创建
type slot struct {
	mu        sync.Mutex
	channelID string
	sink      Sink
}

// Cache 每个会话缓存一个推送目标，首次使用时才创建。
// 创建目标需要网络请求，只锁住对应会话，不影响其他会话。
type Cache struct {
	factory Factory

	mu    sync.Mutex
	slots map[string]*slot
}

// NewCache 创建缓存
func NewCache(factory Factory) *Cache {
	return &Cache{
		factory: factory,
		slots:   make(map[string]*slot),
	}
}

func (c *Cache) slot(guildID string) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.slots[guildID]
	if !ok {
		sl = &slot{}
		c.slots[guildID] = sl
	}
	return sl
}

// Get 返回会话在该频道上的推送目标。频道变化或之前被标记失效时重新创建。
func (c *Cache) Get(ctx context.Context, guildID, channelID string) (Sink, error) {
	sl := c.slot(guildID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.sink != nil && sl.channelID == channelID {
		return sl.sink, nil
	}

	s, err := c.factory.Create(ctx, channelID)
	if err != nil {
		return nil, err
	}
	sl.channelID = channelID
	sl.sink = s
	logger.Debug("sink created", logger.Guild(guildID), logger.String("channelId", channelID))
	return s, nil
}

// Invalidate 丢弃缓存的推送目标，下次 Get 时重新创建。
// 正在创建中的目标只交给当前调用方，不会再被缓存使用。
func (c *Cache) Invalidate(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, guildID)
}
