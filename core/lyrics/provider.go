package lyrics

import (
	"context"
	"errors"

	"GuildFM/logger"
)

// Source 一个歌词来源
type Source interface {
	Name() string
	// Lookup 没找到时返回 nil, nil
	Lookup(ctx context.Context, title, artist string, durationMs int64) ([]Line, error)
}

// Cache 歌词结果缓存。实现应自行处理过期，出错时调用方只记日志。
type Cache interface {
	GetLyrics(ctx context.Context, title, artist string, durationSec int64) ([]Line, bool, error)
	SetLyrics(ctx context.Context, title, artist string, durationSec int64, lines []Line) error
}

// Provider 依次尝试各个来源，第一个有结果的来源胜出
type Provider struct {
	sources []Source
	cache   Cache
}

// NewProvider sources 按优先级排列：带时间轴的在前
func NewProvider(cache Cache, sources ...Source) *Provider {
	return &Provider{sources: sources, cache: cache}
}

// Fetch 获取歌词。所有来源都失败时返回 nil，不返回错误。
func (p *Provider) Fetch(ctx context.Context, title, artist string, durationMs int64) []Line {
	durationSec := durationMs / 1000

	if p.cache != nil {
		lines, ok, err := p.cache.GetLyrics(ctx, title, artist, durationSec)
		if err != nil {
			logger.Warn("lyrics cache read failed", logger.Track(title), logger.ErrorField(err))
		} else if ok && len(lines) > 0 {
			logger.Debug("lyrics cache hit", logger.Track(title))
			return lines
		}
	}

	for _, src := range p.sources {
		if ctx.Err() != nil {
			return nil
		}
		lines, err := src.Lookup(ctx, title, artist, durationMs)
		if err != nil {
			if errors.Is(err, ErrMissingCredential) {
				logger.Debug("lyrics source skipped", logger.String("source", src.Name()), logger.ErrorField(err))
			} else {
				logger.Warn("lyrics source failed", logger.String("source", src.Name()), logger.Track(title), logger.ErrorField(err))
			}
			continue
		}
		if len(lines) == 0 {
			continue
		}

		logger.Info("lyrics found",
			logger.String("source", src.Name()),
			logger.Track(title),
			logger.Int("lines", len(lines)))

		if p.cache != nil {
			if err := p.cache.SetLyrics(ctx, title, artist, durationSec, lines); err != nil {
				logger.Warn("lyrics cache write failed", logger.Track(title), logger.ErrorField(err))
			}
		}
		return lines
	}
	return nil
}
