package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"GuildFM/cache"
	"GuildFM/config"
	"GuildFM/core/auth"
	"GuildFM/core/hub"
	"GuildFM/core/lavalink"
	"GuildFM/core/lyrics"
	"GuildFM/core/player"
	"GuildFM/core/retention"
	"GuildFM/core/sink"
	"GuildFM/db"
	"GuildFM/logger"
	"GuildFM/repository"
	"GuildFM/server"
	"GuildFM/storage"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动GuildFM服务",
	Long:  `连接 Lavalink、MySQL、Redis，启动播放控制器、歌词推送和面板 HTTP 接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer() error {
	cfg := setup()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("JWT_SECRET 未配置: %w", err)
	}

	// MySQL：播放历史和歌词日志
	if err := db.ConnectGormDB(cfg); err != nil {
		return err
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrate(db.GormDB); err != nil {
		return err
	}

	// Redis：歌词缓存和服务器偏好，不可用时退化为进程内存储
	var (
		lyricsCache lyrics.Cache
		prefs       player.Preferences = player.NewMemoryPreferences()
	)
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，歌词缓存关闭，偏好只保存在内存中", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		lyricsCache = cache.NewLyricsCache(cfg.LyricsCacheTTL)
		prefs = cache.NewGuildSettings()
	}

	// 日志表行数上限，可选 MinIO 归档
	var archiver retention.Archiver
	if cfg.ArchiveEnabled() {
		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			logger.Warn("MinIO 不可用，清理的日志不归档", logger.ErrorField(err))
		} else {
			archiver = storage.NewArchiver(client, cfg.MinioBucket)
		}
	}
	t := cfg.Tunables
	retentionMgr := retention.NewManager(t.RetentionInterval, t.RetentionBatch, archiver)
	historyTable := repository.NewPlayHistoryTable(db.GormDB)
	lyricsTable := repository.NewLyricsLogTable(db.GormDB)
	playlists := repository.NewPlaylistRepository(db.GormDB)
	retentionMgr.Register(historyTable, t.PlayHistoryCap)
	retentionMgr.Register(lyricsTable, t.LyricsLogCap)

	// 播放引擎
	node, err := lavalink.NewNode(lavalink.Config{
		URL:        cfg.LavalinkURL,
		Password:   cfg.LavalinkPassword,
		UserID:     cfg.BotUserID,
		ClientName: cfg.ClientName,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		return err
	}

	// 歌词：LRCLIB、网易云带时间轴优先，Genius 纯文本兜底
	provider := lyrics.NewProvider(lyricsCache,
		lyrics.NewLRCLibClient(cfg.LRCLibURL, cfg.LyricsTimeout),
		lyrics.NewNetEaseClient(cfg.NeteaseAPIURL, cfg.LyricsTimeout),
		lyrics.NewGeniusClient(cfg.GeniusAPIURL, cfg.GeniusWebURL, cfg.GeniusAPIKey, cfg.LyricsTimeout),
	)
	scheduler := lyrics.NewScheduler(node)
	scheduler.SetTiming(t.LyricsTick, t.LyricsOffset)

	sinks := sink.NewCache(sink.NewWebhookFactory(cfg.DiscordAPIURL, cfg.DiscordBotToken, cfg.WebhookName))
	relay := sink.NewRelay(sinks)
	defer relay.Close()

	events := hub.New()
	go events.Run()
	defer events.Stop()

	controller := player.New(player.Deps{
		Engine:      node,
		Lyrics:      provider,
		Scheduler:   scheduler,
		Sinks:       sinks,
		Relay:       relay,
		Logs:        retentionMgr,
		Notifier:    events,
		Prefs:       prefs,
		GracePeriod: t.GracePeriod,
	})
	defer controller.Close()
	node.SetHandler(controller)

	go func() {
		if err := node.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("lavalink node stopped", logger.ErrorField(err))
		}
	}()

	if err := config.WatchTunables(ctx, cfg.EnvFile, func(t config.Tunables) {
		controller.SetLyricsTiming(t.LyricsTick, t.LyricsOffset)
		controller.SetGracePeriod(t.GracePeriod)
		retentionMgr.SetLimits(t.RetentionInterval, t.RetentionBatch)
		if err := retentionMgr.SetCap(historyTable.Name(), t.PlayHistoryCap); err != nil {
			logger.Warn("failed to update history cap", logger.ErrorField(err))
		}
		if err := retentionMgr.SetCap(lyricsTable.Name(), t.LyricsLogCap); err != nil {
			logger.Warn("failed to update lyrics log cap", logger.ErrorField(err))
		}
	}); err != nil {
		logger.Warn("配置热更新不可用", logger.ErrorField(err))
	}

	srv := server.New(server.Deps{
		Controller:   controller,
		Hub:          events,
		Issuer:       issuer,
		PasswordHash: cfg.DashboardPasswordHash,
		History:      historyTable,
		Playlists:    playlists,
		EngineReady:  node.Ready,
	})
	return srv.ListenAndServe(ctx, cfg.HTTPAddr)
}
