package db

import (
	"strings"
	"testing"

	"GuildFM/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBUser:     "bot",
		DBPassword: "p@ss",
		DBHost:     "db.local",
		DBPort:     "3307",
		DBName:     "guildfm",
	}
	dsn := DSN(cfg)

	for _, want := range []string{"bot:p@ss@tcp(db.local:3307)/guildfm", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestAutoMigrateNil(t *testing.T) {
	if err := AutoMigrate(nil); err == nil {
		t.Error("expected error for nil db")
	}
}
