package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"GuildFM/core/lyrics"
	"GuildFM/core/retention"
	"GuildFM/core/sink"
	"GuildFM/logger"
	"GuildFM/model"
)

const (
	DefaultGracePeriod  = 2 * time.Second
	defaultFetchTimeout = 15 * time.Second
	engineTimeout       = 10 * time.Second
	defaultDisplayName  = "Music Bot"
	logQueueSize        = 256
	logWriteTimeout     = 5 * time.Second

	// Discord 语音网关关闭码：被移出频道 / 会话失效
	closeCodeDisconnected   = 4014
	closeCodeSessionInvalid = 4006
)

var (
	playHistoryTable = model.PlayHistory{}.TableName()
	lyricsLogTable   = model.LyricsLog{}.TableName()
)

// LyricsFetcher 歌词来源，没有结果时返回 nil
type LyricsFetcher interface {
	Fetch(ctx context.Context, title, artist string, durationMs int64) []lyrics.Line
}

// LogWriter 只追加日志表的写入，失败由实现自行记录
type LogWriter interface {
	Write(ctx context.Context, table string, row retention.Row)
}

// Notifier 事件广播
type Notifier interface {
	Publish(event *model.Event)
}

// Deps 控制器依赖，除 Engine 外都可以为空
type Deps struct {
	Engine       Engine
	Lyrics       LyricsFetcher
	Scheduler    *lyrics.Scheduler
	Sinks        *sink.Cache
	Relay        *sink.Relay
	Logs         LogWriter
	Notifier     Notifier
	Prefs        Preferences
	GracePeriod  time.Duration
	FetchTimeout time.Duration
}

// PlayResult Play 的结果
type PlayResult struct {
	Track    *model.Track `json:"track"`
	Queued   bool         `json:"queued"`
	Position int          `json:"position,omitempty"` // 排队时在待播列表中的位置（从 1 开始）
	Added    int          `json:"added"`              // 开始播放和加入待播的歌曲总数
}

type logEntry struct {
	table string
	row   retention.Row
}

// Controller 管理所有会话的播放生命周期：
// 连接 → 播放 → 根据结束原因推进队列或在宽限期后断开。
// 每个会话的所有状态变更都在该会话的 mailbox 协程中串行执行。
type Controller struct {
	engine       Engine
	fetcher      LyricsFetcher
	scheduler    *lyrics.Scheduler
	sinks        *sink.Cache
	relay        *sink.Relay
	logs         LogWriter
	notifier     Notifier
	prefs        Preferences
	registry     *Registry
	fetchTimeout time.Duration
	grace        atomic.Int64

	voiceMu sync.RWMutex
	voices  map[string]model.VoiceState

	// 日志由单个协程按产生顺序写入
	logQ    chan logEntry
	logDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建控制器
func New(deps Deps) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		engine:       deps.Engine,
		fetcher:      deps.Lyrics,
		scheduler:    deps.Scheduler,
		sinks:        deps.Sinks,
		relay:        deps.Relay,
		logs:         deps.Logs,
		notifier:     deps.Notifier,
		prefs:        deps.Prefs,
		registry:     NewRegistry(),
		fetchTimeout: deps.FetchTimeout,
		voices:       make(map[string]model.VoiceState),
		ctx:          ctx,
		cancel:       cancel,
	}
	if c.scheduler == nil {
		c.scheduler = lyrics.NewScheduler(deps.Engine)
	}
	if c.prefs == nil {
		c.prefs = NewMemoryPreferences()
	}
	if c.fetchTimeout <= 0 {
		c.fetchTimeout = defaultFetchTimeout
	}
	c.SetGracePeriod(deps.GracePeriod)
	if c.logs != nil {
		c.logQ = make(chan logEntry, logQueueSize)
		c.logDone = make(chan struct{})
		go c.runLogWriter()
	}
	return c
}

// Close 关闭所有会话，停止后台任务。已排队的日志写完后返回。
func (c *Controller) Close() {
	c.cancel()
	for _, id := range c.registry.GuildIDs() {
		if s, ok := c.registry.Get(id); ok {
			c.registry.Close(s)
		}
	}
	if c.logDone != nil {
		<-c.logDone
	}
}

// Registry 会话注册表
func (c *Controller) Registry() *Registry {
	return c.registry
}

// SetGracePeriod 队列空后断开前的等待时间
func (c *Controller) SetGracePeriod(d time.Duration) {
	if d <= 0 {
		d = DefaultGracePeriod
	}
	c.grace.Store(int64(d))
}

// GracePeriod 当前宽限期
func (c *Controller) GracePeriod() time.Duration {
	return time.Duration(c.grace.Load())
}

// SetLyricsTiming 修改歌词 tick 间隔和提前量
func (c *Controller) SetLyricsTiming(tick, offset time.Duration) {
	c.scheduler.SetTiming(tick, offset)
}

// UpdateVoice 保存网关转发的语音连接信息。已连接的会话会把新信息同步给引擎。
func (c *Controller) UpdateVoice(guildID string, voice model.VoiceState) {
	c.voiceMu.Lock()
	c.voices[guildID] = voice
	c.voiceMu.Unlock()

	s, ok := c.registry.Get(guildID)
	if !ok || !voice.Complete() {
		return
	}
	s.submit(func() {
		if !s.connected {
			return
		}
		ctx, cancel := c.engineCtx()
		defer cancel()
		if err := c.engine.Connect(ctx, guildID, voice); err != nil {
			logger.Warn("failed to update voice state", logger.Guild(guildID), logger.ErrorField(err))
		}
	})
}

func (c *Controller) voice(guildID string) (model.VoiceState, bool) {
	c.voiceMu.RLock()
	defer c.voiceMu.RUnlock()
	v, ok := c.voices[guildID]
	return v, ok
}

func (c *Controller) engineCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.ctx, engineTimeout)
}

// Search 搜索或加载链接。结果是歌单时返回全部歌曲，否则返回候选列表。
func (c *Controller) Search(ctx context.Context, query string, source model.Source) (model.SearchResult, error) {
	res, err := c.engine.Search(ctx, query, source)
	if err != nil {
		return model.SearchResult{}, &PlaybackError{Op: "search", Message: "Search failed", Err: err}
	}
	if len(res.Tracks) == 0 {
		return model.SearchResult{}, ErrNoResults
	}
	return res, nil
}

// ========== 用户操作 ==========

// Play 空闲时立即播放，否则加入待播列表。失败时队列保持不变。
func (c *Controller) Play(ctx context.Context, guildID string, track *model.Track) (PlayResult, error) {
	if track == nil {
		return PlayResult{}, ErrNoResults
	}
	return c.PlayTracks(ctx, guildID, []*model.Track{track})
}

// PlayTracks 按顺序加入多首歌曲（歌单）。全部在一次 mailbox 调用里完成，
// 中间不会插入其他请求。空闲时从第一首能播放的歌曲开始。
func (c *Controller) PlayTracks(ctx context.Context, guildID string, tracks []*model.Track) (PlayResult, error) {
	tracks = compact(tracks)
	if len(tracks) == 0 {
		return PlayResult{}, ErrNoResults
	}
	for attempt := 0; ; attempt++ {
		s, created := c.registry.Open(guildID)
		if created {
			c.loadPrefs(ctx, s)
		}

		var res PlayResult
		err := s.do(ctx, func() error {
			var err error
			res, err = c.play(s, tracks)
			return err
		})
		// 会话恰好在断开，重新打开一次
		if errors.Is(err, ErrNoSession) && attempt == 0 {
			continue
		}
		return res, err
	}
}

// loadPrefs 读取持久化的歌词设置。读取在调用方协程完成，写入通过 mailbox。
func (c *Controller) loadPrefs(ctx context.Context, s *Session) {
	channel, enabled, err := c.prefs.LyricsChannel(ctx, s.guildID)
	if err != nil {
		logger.Warn("failed to load guild preferences", logger.Guild(s.guildID), logger.ErrorField(err))
		return
	}
	s.submit(func() {
		s.lyricsEnabled = enabled
		s.lyricsChannel = channel
	})
}

func compact(tracks []*model.Track) []*model.Track {
	out := tracks[:0:0]
	for _, t := range tracks {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (c *Controller) play(s *Session, tracks []*model.Track) (PlayResult, error) {
	if s.state == StatePlaying || s.state == StatePaused {
		return c.enqueue(s, tracks), nil
	}

	ctx, cancel := c.engineCtx()
	defer cancel()

	if err := c.ensureConnected(ctx, s); err != nil {
		c.abandonIfUnused(s)
		return PlayResult{}, err
	}

	var lastErr error
	for i, track := range tracks {
		err := c.startTrack(ctx, s, track)
		if err == nil {
			res := PlayResult{Track: track, Added: 1}
			if rest := tracks[i+1:]; len(rest) > 0 {
				res.Added += c.enqueue(s, rest).Added
			}
			return res, nil
		}
		lastErr = err
		if len(tracks) > 1 {
			logger.Warn("skipping unplayable track", logger.Guild(s.guildID), logger.Track(track.Title), logger.ErrorField(err))
			c.publish(model.EventPlaybackError, s.guildID, track, map[string]interface{}{"message": userMessage(err)})
		}
	}

	s.state = StateIdle
	// 已连接但没有在播放，按队列播完处理
	c.scheduleDisconnect(s)
	return PlayResult{}, lastErr
}

// enqueue 加入待播列表末尾
func (c *Controller) enqueue(s *Session, tracks []*model.Track) PlayResult {
	for _, t := range tracks {
		s.queue.Add(t)
	}
	first := tracks[0]
	res := PlayResult{
		Track:    first,
		Queued:   true,
		Position: s.queue.Len() - len(tracks) + 1,
		Added:    len(tracks),
	}
	data := map[string]interface{}{
		"action":   "queued",
		"position": res.Position,
	}
	if len(tracks) > 1 {
		data["count"] = len(tracks)
	}
	c.publish(model.EventMusicControl, s.guildID, first, data)
	return res
}

func (c *Controller) ensureConnected(ctx context.Context, s *Session) error {
	if s.connected {
		return nil
	}
	v, ok := c.voice(s.guildID)
	if !ok || !v.Complete() {
		return &PlaybackError{Op: "connect", Message: "Join a voice channel first", Err: ErrNoVoiceState}
	}

	s.state = StateConnecting
	if err := c.engine.Connect(ctx, s.guildID, v); err != nil {
		s.state = StateIdle
		return &PlaybackError{Op: "connect", Message: "Could not connect to the voice channel", Err: err}
	}
	s.connected = true
	logger.Info("voice connected", logger.Guild(s.guildID), logger.String("channelId", v.ChannelID))
	return nil
}

// abandonIfUnused 从未连接成功且没有歌曲的会话直接关闭
func (c *Controller) abandonIfUnused(s *Session) {
	if !s.connected && s.queue.Empty() {
		c.closeSession(s)
	}
}

// startTrack 让引擎播放并立即执行开始处理；之后到达的同一首歌的开始事件会被忽略
func (c *Controller) startTrack(ctx context.Context, s *Session, track *model.Track) error {
	if err := c.engine.Play(ctx, s.guildID, track); err != nil {
		return &PlaybackError{Op: "play", Message: "Could not play the track", Err: err}
	}
	c.cancelGrace(s)
	s.queue.Start(track)
	s.pendingStart = track
	c.trackStarted(s, track)
	return nil
}

// Skip 停止当前歌曲，引擎的 STOPPED 结束事件会推进队列
func (c *Controller) Skip(ctx context.Context, guildID string) error {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return s.do(ctx, func() error {
		if !s.connected {
			return ErrNotConnected
		}
		cur := s.queue.Current()
		if cur == nil || (s.state != StatePlaying && s.state != StatePaused) {
			return ErrNothingPlaying
		}
		ectx, cancel := c.engineCtx()
		defer cancel()
		if err := c.engine.Stop(ectx, guildID); err != nil {
			return &PlaybackError{Op: "skip", Message: "Could not skip the track", Err: err}
		}
		c.publish(model.EventMusicControl, guildID, cur, map[string]interface{}{"action": "skip"})
		return nil
	})
}

// Stop 清空队列、断开连接并关闭会话
func (c *Controller) Stop(ctx context.Context, guildID string) error {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return s.do(ctx, func() error {
		c.teardown(s, model.EventMusicStopped)
		return nil
	})
}

// teardown 立即丢弃队列和歌词状态，离开语音频道
func (c *Controller) teardown(s *Session, event model.EventType) {
	cur := s.queue.Current()
	s.queue.Clear()
	c.stopLyrics(s)

	ctx, cancel := c.engineCtx()
	defer cancel()
	if err := c.engine.Disconnect(ctx, s.guildID); err != nil {
		logger.Warn("failed to disconnect player", logger.Guild(s.guildID), logger.ErrorField(err))
	}

	c.closeSession(s)
	c.publish(event, s.guildID, cur, nil)
	logger.Info("session closed", logger.Guild(s.guildID), logger.String("reason", string(event)))
}

// Pause 暂停
func (c *Controller) Pause(ctx context.Context, guildID string) error {
	return c.setPaused(ctx, guildID, true)
}

// Resume 继续播放
func (c *Controller) Resume(ctx context.Context, guildID string) error {
	return c.setPaused(ctx, guildID, false)
}

func (c *Controller) setPaused(ctx context.Context, guildID string, paused bool) error {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return s.do(ctx, func() error {
		if !s.connected {
			return ErrNotConnected
		}
		if s.state != StatePlaying && s.state != StatePaused {
			return ErrNothingPlaying
		}
		if (s.state == StatePaused) == paused {
			return nil
		}

		ectx, cancel := c.engineCtx()
		defer cancel()
		if err := c.engine.Pause(ectx, guildID, paused); err != nil {
			return &PlaybackError{Op: "pause", Message: "Could not change playback state", Err: err}
		}

		action := "resume"
		s.state = StatePlaying
		if paused {
			action = "pause"
			s.state = StatePaused
		}
		c.publish(model.EventMusicControl, guildID, s.queue.Current(), map[string]interface{}{"action": action})
		return nil
	})
}

// Seek 跳转。已推送的歌词不会因为往回跳而重发。
func (c *Controller) Seek(ctx context.Context, guildID string, positionMs int64) error {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return s.do(ctx, func() error {
		if !s.connected {
			return ErrNotConnected
		}
		cur := s.queue.Current()
		if cur == nil || (s.state != StatePlaying && s.state != StatePaused) {
			return ErrNothingPlaying
		}
		if positionMs < 0 {
			positionMs = 0
		}
		if cur.DurationMs > 0 && positionMs > cur.DurationMs {
			positionMs = cur.DurationMs
		}

		ectx, cancel := c.engineCtx()
		defer cancel()
		if err := c.engine.Seek(ectx, guildID, positionMs); err != nil {
			return &PlaybackError{Op: "seek", Message: "Could not seek", Err: err}
		}
		c.publish(model.EventMusicControl, guildID, cur, map[string]interface{}{
			"action":     "seek",
			"positionMs": positionMs,
		})
		return nil
	})
}

// SetLoopMode 设置循环模式
func (c *Controller) SetLoopMode(ctx context.Context, guildID string, mode model.LoopMode) error {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return ErrNoSession
	}
	return s.do(ctx, func() error {
		s.queue.SetLoopMode(mode)
		c.publish(model.EventMusicControl, guildID, nil, map[string]interface{}{
			"action": "loop",
			"mode":   mode.String(),
		})
		return nil
	})
}

// EnableLyrics 开启歌词推送。正在播放时立即开始获取歌词。
func (c *Controller) EnableLyrics(ctx context.Context, guildID, channelID string) error {
	if channelID == "" {
		return fmt.Errorf("lyrics channel is required")
	}
	if err := c.prefs.SetLyrics(ctx, guildID, true, channelID); err != nil {
		logger.Warn("failed to save lyrics preference", logger.Guild(guildID), logger.ErrorField(err))
	}

	s, ok := c.registry.Get(guildID)
	if !ok {
		return nil
	}
	return s.do(ctx, func() error {
		changed := !s.lyricsEnabled || s.lyricsChannel != channelID
		s.lyricsEnabled = true
		s.lyricsChannel = channelID
		cur := s.queue.Current()
		if changed && cur != nil && (s.state == StatePlaying || s.state == StatePaused) {
			c.startLyrics(s, cur)
		}
		return nil
	})
}

// DisableLyrics 关闭歌词推送
func (c *Controller) DisableLyrics(ctx context.Context, guildID string) error {
	channel, _, err := c.prefs.LyricsChannel(ctx, guildID)
	if err != nil {
		logger.Warn("failed to load lyrics preference", logger.Guild(guildID), logger.ErrorField(err))
	}
	if err := c.prefs.SetLyrics(ctx, guildID, false, channel); err != nil {
		logger.Warn("failed to save lyrics preference", logger.Guild(guildID), logger.ErrorField(err))
	}

	s, ok := c.registry.Get(guildID)
	if !ok {
		return nil
	}
	return s.do(ctx, func() error {
		s.lyricsEnabled = false
		c.stopLyrics(s)
		return nil
	})
}

// Snapshot 队列快照。没有会话时返回空闲状态。
func (c *Controller) Snapshot(ctx context.Context, guildID string) (model.QueueSnapshot, error) {
	s, ok := c.registry.Get(guildID)
	if !ok {
		return c.idleSnapshot(ctx, guildID), nil
	}

	var snap model.QueueSnapshot
	err := s.do(ctx, func() error {
		snap = s.queue.Snapshot(guildID)
		snap.State = s.state.String()
		snap.Lyrics = s.lyricsEnabled
		return nil
	})
	if errors.Is(err, ErrNoSession) {
		return c.idleSnapshot(ctx, guildID), nil
	}
	return snap, err
}

func (c *Controller) idleSnapshot(ctx context.Context, guildID string) model.QueueSnapshot {
	_, enabled, _ := c.prefs.LyricsChannel(ctx, guildID)
	return model.QueueSnapshot{
		GuildID:  guildID,
		State:    StateIdle.String(),
		LoopMode: model.LoopOff.String(),
		Pending:  []*model.Track{},
		History:  []*model.Track{},
		Lyrics:   enabled,
	}
}

// ========== 引擎事件（lavalink.Handler） ==========

// OnTrackStart 引擎确认开始播放
func (c *Controller) OnTrackStart(guildID string, track *model.Track) {
	s, ok := c.registry.Get(guildID)
	if !ok {
		logger.Debug("track start for unknown session", logger.Guild(guildID))
		return
	}
	s.submit(func() { c.engineTrackStarted(s, track) })
}

func (c *Controller) engineTrackStarted(s *Session, track *model.Track) {
	if p := s.pendingStart; p != nil {
		s.pendingStart = nil
		if track == nil || track.Encoded == p.Encoded {
			return
		}
	}
	if track == nil {
		return
	}

	// 不是由本控制器发起的播放
	cur := s.queue.Current()
	if cur == nil || cur.Encoded != track.Encoded {
		s.queue.Start(track)
		cur = track
	}
	c.cancelGrace(s)
	c.trackStarted(s, cur)
}

// trackStarted 记录播放历史、开始歌词、广播 track_start
func (c *Controller) trackStarted(s *Session, track *model.Track) {
	s.state = StatePlaying

	c.writeLog(playHistoryTable, model.NewPlayHistory(s.guildID, track))
	if s.lyricsEnabled && s.lyricsChannel != "" {
		c.startLyrics(s, track)
	}

	c.publish(model.EventTrackStart, s.guildID, track, nil)
	logger.Info("track started", logger.Guild(s.guildID), logger.Track(track.Title))
}

// OnTrackEnd 引擎报告歌曲结束
func (c *Controller) OnTrackEnd(guildID string, track *model.Track, reason string) {
	s, ok := c.registry.Get(guildID)
	if !ok {
		logger.Debug("track end for unknown session", logger.Guild(guildID), logger.String("reason", reason))
		return
	}
	s.submit(func() { c.trackEnded(s, track, ParseEndReason(reason)) })
}

func (c *Controller) trackEnded(s *Session, track *model.Track, reason EndReason) {
	if !reason.MayStartNext() {
		logger.Debug("track end does not advance queue", logger.Guild(s.guildID), logger.String("reason", reason.String()))
		return
	}

	// 旧歌曲迟到的结束事件
	if cur := s.queue.Current(); track != nil && cur != nil && cur.Encoded != track.Encoded {
		logger.Debug("stale track end ignored", logger.Guild(s.guildID), logger.Track(track.Title))
		return
	}

	c.stopLyrics(s)
	s.state = StateEnded

	if !c.advance(s) {
		s.state = StateIdle
		c.scheduleDisconnect(s)
	}
}

// advance 播放队列中的下一首。播放失败的歌曲移入历史并继续尝试后面的歌曲，
// 直到有一首开始播放或队列耗尽。列表循环时最多把整个队列尝试一遍。
func (c *Controller) advance(s *Session) bool {
	attempts := s.queue.Len() + s.queue.HistoryLen() + 1
	for i := 0; i < attempts; i++ {
		next := s.queue.GetNext()
		if next == nil {
			return false
		}

		ctx, cancel := c.engineCtx()
		err := c.startTrack(ctx, s, next)
		cancel()
		if err == nil {
			return true
		}

		logger.Error("failed to play next track", logger.Guild(s.guildID), logger.Track(next.Title), logger.ErrorField(err))
		c.publish(model.EventPlaybackError, s.guildID, next, map[string]interface{}{"message": userMessage(err)})
		// 单曲循环时不再重复同一首
		s.queue.Retire()
	}
	logger.Warn("no playable track left in queue", logger.Guild(s.guildID), logger.Int("pending", s.queue.Len()))
	return false
}

// OnTrackException 播放过程中出错，随后引擎会发送结束事件
func (c *Controller) OnTrackException(guildID string, track *model.Track, message string) {
	c.publish(model.EventPlaybackError, guildID, track, map[string]interface{}{"message": message})
}

// OnVoiceClosed 语音连接被关闭。被移出频道时结束会话。
func (c *Controller) OnVoiceClosed(guildID string, code int, reason string) {
	if code != closeCodeDisconnected && code != closeCodeSessionInvalid {
		return
	}
	s, ok := c.registry.Get(guildID)
	if !ok {
		return
	}
	s.submit(func() { c.teardown(s, model.EventMusicStopped) })
}

// ========== 宽限期断开 ==========

func (c *Controller) scheduleDisconnect(s *Session) {
	c.cancelGrace(s)
	gen := s.graceGen
	s.graceTimer = time.AfterFunc(c.GracePeriod(), func() {
		s.submit(func() { c.disconnectIfIdle(s, gen) })
	})
}

func (c *Controller) cancelGrace(s *Session) {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
	s.graceGen++
}

func (c *Controller) disconnectIfIdle(s *Session, gen uint64) {
	if gen != s.graceGen {
		return
	}
	s.graceTimer = nil

	if st, ok := c.engine.State(s.guildID); ok && (st.Playing || st.Paused) {
		logger.Info("player active again, keeping connection", logger.Guild(s.guildID))
		return
	}
	c.teardown(s, model.EventQueueEmptyDisconnect)
}

func (c *Controller) closeSession(s *Session) {
	c.stopLyrics(s)
	c.cancelGrace(s)
	s.connected = false
	s.state = StateIdle
	s.pendingStart = nil
	c.registry.Close(s)

	if c.relay != nil {
		c.relay.Forget(s.guildID)
	}
	if c.sinks != nil {
		c.sinks.Invalidate(s.guildID)
	}
}

// ========== 歌词 ==========

// startLyrics 异步获取歌词，完成后回到 mailbox 检查会话和代数是否仍然有效
func (c *Controller) startLyrics(s *Session, track *model.Track) {
	c.stopLyrics(s)
	if c.fetcher == nil {
		return
	}
	gen := s.lyricsGen
	channel := s.lyricsChannel
	go c.fetchLyrics(s, gen, channel, track)
}

// stopLyrics 停止歌词循环并丢弃还没发出的歌词
func (c *Controller) stopLyrics(s *Session) {
	if s.stopLyrics != nil {
		s.stopLyrics()
		s.stopLyrics = nil
	}
	s.lyrics = nil
	s.lyricsGen++
	if c.relay != nil {
		c.relay.Flush(s.guildID)
	}
}

func (c *Controller) fetchLyrics(s *Session, gen uint64, channel string, track *model.Track) {
	ctx, cancel := context.WithTimeout(c.ctx, c.fetchTimeout)
	defer cancel()

	c.publish(model.EventLyricsSearching, s.guildID, track, nil)
	remove := c.showSearching(ctx, s.guildID, channel, track)
	lines := c.fetcher.Fetch(ctx, track.Title, track.Author, track.DurationMs)
	remove()

	if !s.submit(func() { c.lyricsFetched(s, gen, channel, track, lines) }) {
		logger.Debug("lyrics fetched after session closed, discarded", logger.Guild(s.guildID))
	}
}

func (c *Controller) lyricsFetched(s *Session, gen uint64, channel string, track *model.Track, lines []lyrics.Line) {
	if !c.registry.Active(s) || gen != s.lyricsGen {
		logger.Debug("stale lyrics discarded", logger.Guild(s.guildID), logger.Track(track.Title))
		return
	}
	if len(lines) == 0 {
		c.publish(model.EventLyricsUnavailable, s.guildID, track, nil)
		return
	}

	ls := lyrics.NewSession(track, lines)
	if st, ok := c.engine.State(s.guildID); ok {
		if skipped := ls.FastForward(st.PositionSeconds(), c.scheduler.Offset().Seconds()); skipped > 0 {
			logger.Debug("skipped past lyrics", logger.Guild(s.guildID), logger.Int("lines", skipped))
		}
	}
	s.lyrics = ls
	s.stopLyrics = c.scheduler.Start(c.ctx, s.guildID, ls, c.lineDispatcher(channel))
	c.publish(model.EventLyricsLoaded, s.guildID, track, map[string]interface{}{"lines": ls.Len()})
}

// lineDispatcher 在歌词循环协程中执行，只做非阻塞的入队
func (c *Controller) lineDispatcher(channel string) lyrics.Dispatcher {
	return lyrics.DispatcherFunc(func(ctx context.Context, guildID string, track *model.Track, line lyrics.Line) {
		if c.relay != nil && channel != "" {
			c.relay.Enqueue(ctx, guildID, channel, sink.Message{
				Text:      line.Text,
				Username:  displayName(track),
				AvatarURL: track.Artwork(),
			})
		}
		c.writeLog(lyricsLogTable, model.NewLyricsLog(guildID, track, line.Text, line.Timestamp))
		c.publish(model.EventLyricsLine, guildID, nil, map[string]interface{}{
			"text":      line.Text,
			"timestamp": line.Timestamp,
		})
	})
}

// showSearching 显示"正在搜索"提示，返回的函数负责删除它
func (c *Controller) showSearching(ctx context.Context, guildID, channel string, track *model.Track) func() {
	noop := func() {}
	if c.sinks == nil || channel == "" {
		return noop
	}

	sk, err := c.sinks.Get(ctx, guildID, channel)
	if err != nil {
		logger.Warn("lyrics sink unavailable", logger.Guild(guildID), logger.ErrorField(err))
		return noop
	}
	remove, err := sk.ShowSearching(ctx, sink.Message{
		Text:      fmt.Sprintf("🔍 Searching lyrics: **%s**", track.Title),
		Username:  displayName(track),
		AvatarURL: track.Artwork(),
	})
	if err != nil {
		if errors.Is(err, sink.ErrInvalidSink) {
			c.sinks.Invalidate(guildID)
		}
		logger.Warn("failed to show searching indicator", logger.Guild(guildID), logger.ErrorField(err))
		return noop
	}

	return func() {
		// 获取歌词超时后仍要删除提示
		rctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		defer cancel()
		if err := remove(rctx); err != nil {
			logger.Warn("failed to remove searching indicator", logger.Guild(guildID), logger.ErrorField(err))
		}
	}
}

// ========== 日志 ==========

// writeLog 非阻塞入队，队列满时丢弃
func (c *Controller) writeLog(table string, row retention.Row) {
	if c.logQ == nil {
		return
	}
	select {
	case c.logQ <- logEntry{table: table, row: row}:
	default:
		logger.Warn("log queue full, dropping row", logger.String("table", table))
	}
}

func (c *Controller) runLogWriter() {
	defer close(c.logDone)
	for {
		select {
		case e := <-c.logQ:
			c.flushLog(e)
		case <-c.ctx.Done():
			for {
				select {
				case e := <-c.logQ:
					c.flushLog(e)
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) flushLog(e logEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), logWriteTimeout)
	defer cancel()
	c.logs.Write(ctx, e.table, e.row)
}

func (c *Controller) publish(typ model.EventType, guildID string, track *model.Track, data interface{}) {
	if c.notifier == nil {
		return
	}
	c.notifier.Publish(model.NewEvent(typ, guildID, track, data))
}

func displayName(track *model.Track) string {
	if track == nil || track.Title == "" {
		return defaultDisplayName
	}
	return track.Title
}

// userMessage 提取可以展示给用户的错误信息
func userMessage(err error) string {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return err.Error()
}

// UserMessage 导出给 server 使用
func UserMessage(err error) string {
	return userMessage(err)
}
