package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"GuildFM/core/retention"
	"GuildFM/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.PlayHistory{}, &model.LyricsLog{}, &model.Playlist{}, &model.PlaylistTrack{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestLogTableCRUD(t *testing.T) {
	db := openTestDB(t)
	table := NewPlayHistoryTable(db)
	ctx := context.Background()

	if table.Name() != "play_history" {
		t.Fatalf("name = %s", table.Name())
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 插入顺序和时间顺序不同
	for _, offset := range []int{3, 1, 2, 1} {
		h := model.NewPlayHistory("g1", &model.Track{Title: "t", DurationMs: 1000})
		h.CreatedAt = base.Add(time.Duration(offset) * time.Minute)
		if err := table.Insert(ctx, h); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	n, err := table.Count(ctx)
	if err != nil || n != 4 {
		t.Fatalf("count = %d, %v", n, err)
	}

	oldest, err := table.Oldest(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(oldest) != 3 {
		t.Fatalf("oldest returned %d rows", len(oldest))
	}
	// 同一时间按 id 排序
	if oldest[0].RowID() != 2 || oldest[1].RowID() != 4 || oldest[2].RowID() != 3 {
		t.Errorf("unexpected order: %d %d %d", oldest[0].RowID(), oldest[1].RowID(), oldest[2].RowID())
	}

	if err := table.Delete(ctx, []int64{oldest[0].RowID(), oldest[1].RowID()}); err != nil {
		t.Fatal(err)
	}
	if n, _ := table.Count(ctx); n != 2 {
		t.Errorf("count after delete = %d, want 2", n)
	}
}

func TestLogTableRejectsWrongRow(t *testing.T) {
	table := NewLyricsLogTable(openTestDB(t))
	err := table.Insert(context.Background(), &model.PlayHistory{})
	if err == nil {
		t.Fatal("expected type error")
	}
}

func TestLogTableRecent(t *testing.T) {
	db := openTestDB(t)
	table := NewLyricsLogTable(db)
	ctx := context.Background()

	track := &model.Track{Title: "song"}
	for i, text := range []string{"a", "b", "c"} {
		l := model.NewLyricsLog("g1", track, text, float64(i))
		l.CreatedAt = time.Unix(int64(1000+i), 0)
		table.Insert(ctx, l)
	}
	table.Insert(ctx, model.NewLyricsLog("g2", track, "other", 0))

	recs, err := table.Recent(ctx, "g1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Text != "c" || recs[1].Text != "b" {
		t.Fatalf("unexpected recent: %+v", recs)
	}
}

func TestRetentionWithGorm(t *testing.T) {
	db := openTestDB(t)
	table := NewLyricsLogTable(db)
	m := retention.NewManager(5, 3, nil)
	m.Register(table, 10)

	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	for i := 0; i < 42; i++ {
		l := model.NewLyricsLog("g", nil, "line", 0)
		l.CreatedAt = base.Add(time.Duration(i) * time.Second)
		m.Write(ctx, table.Name(), l)
	}

	n, _ := table.Count(ctx)
	if n > 10+5 {
		t.Fatalf("count = %d exceeds cap plus interval", n)
	}
	oldest, _ := table.Oldest(ctx, 1)
	// 第 40 次写入后清理到 10 行，剩下 id 31..42
	if len(oldest) != 1 || oldest[0].RowID() != 31 {
		t.Errorf("oldest retained id = %v", oldest)
	}
}
