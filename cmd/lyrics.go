package cmd

import (
	"context"
	"fmt"

	"GuildFM/cache"
	"GuildFM/core/lyrics"
	"GuildFM/logger"

	"github.com/spf13/cobra"
)

var (
	lyricsTitle    string
	lyricsArtist   string
	lyricsDuration int64
	lyricsUseCache bool
)

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "查询一首歌的歌词",
	Long:  `按 LRCLIB → 网易云 → Genius 的顺序查询歌词并输出时间轴，用于排查歌词来源。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if lyricsTitle == "" {
			return fmt.Errorf("--title 不能为空")
		}
		cfg := setup()

		var lc lyrics.Cache
		if lyricsUseCache {
			if err := cache.ConnectRedis(cfg); err != nil {
				logger.Warn("Redis 不可用，跳过缓存", logger.ErrorField(err))
			} else {
				defer cache.CloseRedis()
				lc = cache.NewLyricsCache(cfg.LyricsCacheTTL)
			}
		}

		provider := lyrics.NewProvider(lc,
			lyrics.NewLRCLibClient(cfg.LRCLibURL, cfg.LyricsTimeout),
		lyrics.NewNetEaseClient(cfg.NeteaseAPIURL, cfg.LyricsTimeout),
			lyrics.NewGeniusClient(cfg.GeniusAPIURL, cfg.GeniusWebURL, cfg.GeniusAPIKey, cfg.LyricsTimeout),
		)

		ctx, cancel := context.WithTimeout(cmd.Context(), 3*cfg.LyricsTimeout)
		defer cancel()
		lines := provider.Fetch(ctx, lyricsTitle, lyricsArtist, lyricsDuration*1000)
		if len(lines) == 0 {
			fmt.Println("没有找到歌词")
			return nil
		}
		for _, l := range lines {
			m := int(l.Timestamp) / 60
			s := l.Timestamp - float64(m*60)
			fmt.Printf("[%02d:%05.2f] %s\n", m, s, l.Text)
		}
		fmt.Printf("共 %d 行\n", len(lines))
		return nil
	},
}

func init() {
	lyricsCmd.Flags().StringVarP(&lyricsTitle, "title", "t", "", "歌曲名")
	lyricsCmd.Flags().StringVarP(&lyricsArtist, "artist", "a", "", "歌手")
	lyricsCmd.Flags().Int64VarP(&lyricsDuration, "duration", "d", 0, "时长（秒），用于 LRCLIB 精确匹配")
	lyricsCmd.Flags().BoolVar(&lyricsUseCache, "cache", false, "读写 Redis 歌词缓存")
	rootCmd.AddCommand(lyricsCmd)
}
