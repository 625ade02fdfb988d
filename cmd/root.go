package cmd

import (
	"fmt"
	"os"

	"GuildFM/config"
	"GuildFM/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "guildfm",
	Short: "GuildFM 语音频道音乐与同步歌词服务",
	Long:  `GuildFM 通过 Lavalink 在语音频道播放音乐，并把带时间轴的歌词推送到文字频道。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化日志，所有子命令共用
func setup() *config.Config {
	cfg := config.Load()
	logger.InitLogger(logger.Config{
		Level:      logger.ParseLevel(cfg.LogLevel),
		OutputPath: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})
	return cfg
}
