package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gorm.io/gorm"

	"GuildFM/model"
)

// MaxPlaylistTracks 单个歌单的歌曲上限
const MaxPlaylistTracks = 500

var (
	ErrPlaylistNotFound = errors.New("playlist not found")
	ErrPlaylistExists   = errors.New("playlist with this name already exists")
	ErrPlaylistFull     = errors.New("playlist is full")
	ErrTrackNotFound    = errors.New("playlist track not found")
)

// PlaylistRepository 服务器歌单的持久化
type PlaylistRepository interface {
	Create(ctx context.Context, p *model.Playlist) error
	List(ctx context.Context, guildID string) ([]model.Playlist, error)
	Get(ctx context.Context, guildID string, id int64) (*model.Playlist, error)
	Delete(ctx context.Context, guildID string, id int64) error
	AddTracks(ctx context.Context, guildID string, id int64, tracks []*model.PlaylistTrack) (int, error)
	RemoveTrack(ctx context.Context, guildID string, id, trackID int64) error
	Shuffle(ctx context.Context, guildID string, id int64) error
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

// NewPlaylistRepository 创建基于 GORM 的歌单仓库
func NewPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

// Create 创建歌单，同一服务器内名称唯一
func (r *gormPlaylistRepository) Create(ctx context.Context, p *model.Playlist) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Playlist{}).
			Where("guild_id = ? AND name = ?", p.GuildID, p.Name).
			Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check playlist name: %w", err)
		}
		if n > 0 {
			return ErrPlaylistExists
		}
		if err := tx.Omit("Tracks").Create(p).Error; err != nil {
			return fmt.Errorf("failed to create playlist: %w", err)
		}
		return nil
	})
}

// List 服务器的全部歌单（不含歌曲），新的在前
func (r *gormPlaylistRepository) List(ctx context.Context, guildID string) ([]model.Playlist, error) {
	var lists []model.Playlist
	err := r.db.WithContext(ctx).
		Where("guild_id = ?", guildID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&lists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	ids := make([]int64, len(lists))
	for i := range lists {
		ids[i] = lists[i].ID
	}
	var counts []struct {
		PlaylistID int64
		N          int
	}
	err = r.db.WithContext(ctx).Model(&model.PlaylistTrack{}).
		Select("playlist_id, COUNT(*) AS n").
		Where("playlist_id IN ?", ids).
		Group("playlist_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count playlist tracks: %w", err)
	}
	byID := make(map[int64]int, len(counts))
	for _, c := range counts {
		byID[c.PlaylistID] = c.N
	}
	for i := range lists {
		lists[i].TrackCount = byID[lists[i].ID]
	}
	return lists, nil
}

// Get 歌单及按位置排序的歌曲
func (r *gormPlaylistRepository) Get(ctx context.Context, guildID string, id int64) (*model.Playlist, error) {
	var p model.Playlist
	err := r.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("id ASC")
		}).
		Where("id = ? AND guild_id = ?", id, guildID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}
	p.TrackCount = len(p.Tracks)
	return &p, nil
}

// Delete 删除歌单和其中的歌曲
func (r *gormPlaylistRepository) Delete(ctx context.Context, guildID string, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPlaylist(tx, guildID, id); err != nil {
			return err
		}
		if err := tx.Where("playlist_id = ?", id).Delete(&model.PlaylistTrack{}).Error; err != nil {
			return fmt.Errorf("failed to delete playlist tracks: %w", err)
		}
		if err := tx.Delete(&model.Playlist{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete playlist: %w", err)
		}
		return nil
	})
}

// AddTracks 追加到歌单末尾，返回追加后的歌曲数
func (r *gormPlaylistRepository) AddTracks(ctx context.Context, guildID string, id int64, tracks []*model.PlaylistTrack) (int, error) {
	var total int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPlaylist(tx, guildID, id); err != nil {
			return err
		}
		var n int64
		if err := tx.Model(&model.PlaylistTrack{}).Where("playlist_id = ?", id).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to count playlist tracks: %w", err)
		}
		if int(n)+len(tracks) > MaxPlaylistTracks {
			return ErrPlaylistFull
		}
		for i, t := range tracks {
			t.ID = 0
			t.PlaylistID = id
			t.Position = int(n) + i
		}
		if len(tracks) > 0 {
			if err := tx.Create(&tracks).Error; err != nil {
				return fmt.Errorf("failed to add playlist tracks: %w", err)
			}
		}
		total = int(n) + len(tracks)
		return touchPlaylist(tx, id)
	})
	return total, err
}

// RemoveTrack 删除一首歌并重新连续编号
func (r *gormPlaylistRepository) RemoveTrack(ctx context.Context, guildID string, id, trackID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPlaylist(tx, guildID, id); err != nil {
			return err
		}
		res := tx.Where("id = ? AND playlist_id = ?", trackID, id).Delete(&model.PlaylistTrack{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove playlist track: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTrackNotFound
		}

		ids, err := trackIDs(tx, id)
		if err != nil {
			return err
		}
		if err := renumber(tx, ids); err != nil {
			return err
		}
		return touchPlaylist(tx, id)
	})
}

// Shuffle 随机打乱歌曲顺序
func (r *gormPlaylistRepository) Shuffle(ctx context.Context, guildID string, id int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockPlaylist(tx, guildID, id); err != nil {
			return err
		}
		ids, err := trackIDs(tx, id)
		if err != nil {
			return err
		}
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
		if err := renumber(tx, ids); err != nil {
			return err
		}
		return touchPlaylist(tx, id)
	})
}

// lockPlaylist 确认歌单属于该服务器
func lockPlaylist(tx *gorm.DB, guildID string, id int64) error {
	var n int64
	if err := tx.Model(&model.Playlist{}).Where("id = ? AND guild_id = ?", id, guildID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to find playlist: %w", err)
	}
	if n == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

func trackIDs(tx *gorm.DB, playlistID int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.PlaylistTrack{}).
		Where("playlist_id = ?", playlistID).
		Order("position ASC").
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load playlist tracks: %w", err)
	}
	return ids, nil
}

func renumber(tx *gorm.DB, ids []int64) error {
	for pos, id := range ids {
		if err := tx.Model(&model.PlaylistTrack{}).Where("id = ?", id).Update("position", pos).Error; err != nil {
			return fmt.Errorf("failed to reorder playlist: %w", err)
		}
	}
	return nil
}

func touchPlaylist(tx *gorm.DB, id int64) error {
	if err := tx.Model(&model.Playlist{}).Where("id = ?", id).Update("updated_at", time.Now()).Error; err != nil {
		return fmt.Errorf("failed to update playlist: %w", err)
	}
	return nil
}
