package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"GuildFM/model"
)

func newPlaylist(t *testing.T, repo PlaylistRepository, guildID, name string) *model.Playlist {
	t.Helper()
	p := &model.Playlist{GuildID: guildID, Name: name, CreatorID: "u1", CreatorName: "alice"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return p
}

func entries(titles ...string) []*model.PlaylistTrack {
	out := make([]*model.PlaylistTrack, len(titles))
	for i, title := range titles {
		out[i] = model.NewPlaylistTrack(&model.Track{Encoded: "enc-" + title, Title: title, DurationMs: 1000}, "u1", "alice")
	}
	return out
}

func titlesOf(p *model.Playlist) []string {
	out := make([]string, len(p.Tracks))
	for i, tr := range p.Tracks {
		out[i] = tr.Title
	}
	return out
}

func TestPlaylistCreateAndList(t *testing.T) {
	repo := NewPlaylistRepository(openTestDB(t))
	ctx := context.Background()

	first := newPlaylist(t, repo, "g1", "chill")
	newPlaylist(t, repo, "g1", "rock")
	newPlaylist(t, repo, "g2", "chill")

	if err := repo.Create(ctx, &model.Playlist{GuildID: "g1", Name: "chill"}); !errors.Is(err, ErrPlaylistExists) {
		t.Fatalf("duplicate name err = %v", err)
	}

	if _, err := repo.AddTracks(ctx, "g1", first.ID, entries("a", "b")); err != nil {
		t.Fatal(err)
	}

	lists, err := repo.List(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 2 {
		t.Fatalf("g1 has %d playlists, want 2", len(lists))
	}
	// 新建的在前
	if lists[0].Name != "rock" || lists[1].Name != "chill" {
		t.Errorf("unexpected order: %s, %s", lists[0].Name, lists[1].Name)
	}
	if lists[1].TrackCount != 2 || lists[0].TrackCount != 0 {
		t.Errorf("track counts = %d, %d", lists[0].TrackCount, lists[1].TrackCount)
	}
	if len(lists[1].Tracks) != 0 {
		t.Error("list should not load tracks")
	}
}

func TestPlaylistTracksKeepPosition(t *testing.T) {
	repo := NewPlaylistRepository(openTestDB(t))
	ctx := context.Background()
	p := newPlaylist(t, repo, "g1", "mix")

	n, err := repo.AddTracks(ctx, "g1", p.ID, entries("a", "b", "c"))
	if err != nil || n != 3 {
		t.Fatalf("add = %d, %v", n, err)
	}
	n, err = repo.AddTracks(ctx, "g1", p.ID, entries("d"))
	if err != nil || n != 4 {
		t.Fatalf("second add = %d, %v", n, err)
	}

	got, err := repo.Get(ctx, "g1", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(titlesOf(got)) != "[a b c d]" {
		t.Fatalf("tracks = %v", titlesOf(got))
	}

	if err := repo.RemoveTrack(ctx, "g1", p.ID, got.Tracks[1].ID); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.Get(ctx, "g1", p.ID)
	if fmt.Sprint(titlesOf(got)) != "[a c d]" {
		t.Fatalf("after remove = %v", titlesOf(got))
	}
	for i, tr := range got.Tracks {
		if tr.Position != i {
			t.Errorf("track %s at position %d, want %d", tr.Title, tr.Position, i)
		}
	}

	if err := repo.RemoveTrack(ctx, "g1", p.ID, 9999); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("remove missing err = %v", err)
	}
	if got.Tracks[0].Track().Encoded != "enc-a" {
		t.Errorf("stored track lost its engine id")
	}
}

func TestPlaylistGuildScoped(t *testing.T) {
	repo := NewPlaylistRepository(openTestDB(t))
	ctx := context.Background()
	p := newPlaylist(t, repo, "g1", "private")

	tests := []struct {
		name string
		run  func() error
	}{
		{"get", func() error { _, err := repo.Get(ctx, "g2", p.ID); return err }},
		{"add", func() error { _, err := repo.AddTracks(ctx, "g2", p.ID, entries("x")); return err }},
		{"remove", func() error { return repo.RemoveTrack(ctx, "g2", p.ID, 1) }},
		{"shuffle", func() error { return repo.Shuffle(ctx, "g2", p.ID) }},
		{"delete", func() error { return repo.Delete(ctx, "g2", p.ID) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, ErrPlaylistNotFound) {
				t.Errorf("err = %v, want ErrPlaylistNotFound", err)
			}
		})
	}

	if _, err := repo.Get(ctx, "g1", p.ID); err != nil {
		t.Errorf("owner lost access: %v", err)
	}
}

func TestPlaylistDeleteRemovesTracks(t *testing.T) {
	db := openTestDB(t)
	repo := NewPlaylistRepository(db)
	ctx := context.Background()
	p := newPlaylist(t, repo, "g1", "gone")
	repo.AddTracks(ctx, "g1", p.ID, entries("a", "b"))

	if err := repo.Delete(ctx, "g1", p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Get(ctx, "g1", p.ID); !errors.Is(err, ErrPlaylistNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	var n int64
	db.Model(&model.PlaylistTrack{}).Where("playlist_id = ?", p.ID).Count(&n)
	if n != 0 {
		t.Errorf("%d orphan tracks left", n)
	}
}

func TestPlaylistFullAndShuffle(t *testing.T) {
	repo := NewPlaylistRepository(openTestDB(t))
	ctx := context.Background()
	p := newPlaylist(t, repo, "g1", "big")

	titles := make([]string, MaxPlaylistTracks)
	for i := range titles {
		titles[i] = fmt.Sprintf("t%03d", i)
	}
	if _, err := repo.AddTracks(ctx, "g1", p.ID, entries(titles...)); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddTracks(ctx, "g1", p.ID, entries("overflow")); !errors.Is(err, ErrPlaylistFull) {
		t.Fatalf("overflow err = %v", err)
	}

	if err := repo.Shuffle(ctx, "g1", p.ID); err != nil {
		t.Fatal(err)
	}
	got, _ := repo.Get(ctx, "g1", p.ID)
	if len(got.Tracks) != MaxPlaylistTracks {
		t.Fatalf("shuffle changed size to %d", len(got.Tracks))
	}
	seen := make(map[string]bool)
	for i, tr := range got.Tracks {
		if tr.Position != i {
			t.Fatalf("position gap at %d", i)
		}
		seen[tr.Title] = true
	}
	if len(seen) != MaxPlaylistTracks {
		t.Errorf("shuffle lost tracks: %d unique", len(seen))
	}
}
