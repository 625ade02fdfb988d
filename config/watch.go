package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"GuildFM/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchTunables 监听 .env 文件变化，重新读取可热更新的参数后回调 onChange。
// 监听的是所在目录，编辑器常用“写临时文件再改名”的方式保存。
func WatchTunables(ctx context.Context, envFile string, onChange func(Tunables)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(envFile)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(envFile)
	go func() {
		defer watcher.Close()

		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					debounce = time.After(200 * time.Millisecond)
				}

			case <-debounce:
				debounce = nil
				if err := godotenv.Overload(envFile); err != nil {
					logger.Warn("reload env file failed", logger.String("file", envFile), logger.ErrorField(err))
					continue
				}
				t := tunablesFromEnv()
				logger.Info("tunables reloaded",
					logger.Duration("lyricsOffset", t.LyricsOffset),
					logger.Int64("lyricsLogCap", t.LyricsLogCap),
					logger.Int64("playHistoryCap", t.PlayHistoryCap))
				onChange(t)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("env watcher error", logger.ErrorField(err))
			}
		}
	}()

	return nil
}
