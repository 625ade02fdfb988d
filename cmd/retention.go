package cmd

import (
	"fmt"

	"GuildFM/core/retention"
	"GuildFM/db"
	"GuildFM/logger"
	"GuildFM/repository"
	"GuildFM/storage"

	"github.com/spf13/cobra"
)

var retentionTable string

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "日志表行数管理",
}

var retentionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "立即把日志表清理到上限以内",
	Long:  `不等待写入计数，直接检查 play_history 和 lyrics_logs，超出上限的最旧记录会被删除（配置了 MinIO 时先归档）。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		ctx := cmd.Context()

		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

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
		mgr := retention.NewManager(t.RetentionInterval, t.RetentionBatch, archiver)
		mgr.Register(repository.NewPlayHistoryTable(db.GormDB), t.PlayHistoryCap)
		mgr.Register(repository.NewLyricsLogTable(db.GormDB), t.LyricsLogCap)

		deleted := mgr.CleanupAll(ctx)
		for _, name := range mgr.Tables() {
			limit, _ := mgr.Cap(name)
			fmt.Printf("%-14s 上限 %-8d 删除 %d\n", name, limit, deleted[name])
		}
		return nil
	},
}

var retentionArchivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "列出 MinIO 中的归档文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		if !cfg.ArchiveEnabled() {
			return fmt.Errorf("MinIO 未配置")
		}
		ctx := cmd.Context()

		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			return err
		}
		infos, err := storage.NewArchiver(client, cfg.MinioBucket).List(ctx, retentionTable)
		if err != nil {
			return err
		}

		var total int64
		for _, info := range infos {
			fmt.Printf("%s  %8d  %s\n", info.LastModified.Format("2006-01-02 15:04:05"), info.Size, info.Key)
			total += info.Size
		}
		fmt.Printf("共 %d 个文件, %d 字节\n", len(infos), total)
		return nil
	},
}

func init() {
	retentionArchivesCmd.Flags().StringVar(&retentionTable, "table", "", "只列出某张表（play_history / lyrics_logs）")
	retentionCmd.AddCommand(retentionCleanupCmd, retentionArchivesCmd)
	rootCmd.AddCommand(retentionCmd)
}
