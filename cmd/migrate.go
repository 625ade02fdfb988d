package cmd

import (
	"fmt"

	"GuildFM/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建或更新日志表",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := setup()
		if err := db.ConnectGormDB(cfg); err != nil {
			return err
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrate(db.GormDB); err != nil {
			return err
		}
		fmt.Println("迁移完成: play_history, lyrics_logs")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
