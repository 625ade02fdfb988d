package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	EnvFile  string
	HTTPAddr string

	// 日志
	LogLevel string
	LogFile  string

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	LyricsCacheTTL time.Duration

	// 播放引擎（Lavalink v4）
	LavalinkURL      string
	LavalinkPassword string
	BotUserID        string
	ClientName       string

	// Discord，用于创建歌词 Webhook
	DiscordAPIURL   string
	DiscordBotToken string
	WebhookName     string

	// 歌词服务
	LRCLibURL     string
	NeteaseAPIURL string // 自建 NeteaseCloudMusicApi，为空时不使用
	GeniusAPIURL  string
	GeniusWebURL  string
	GeniusAPIKey  string
	LyricsTimeout time.Duration

	// 面板认证
	JWTSecret             string
	DashboardPasswordHash string
	TokenTTL              time.Duration

	// MinIO（日志归档，可选）
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	Tunables Tunables
}

// Tunables 可在运行时通过修改 .env 热更新的参数
type Tunables struct {
	LyricsOffset      time.Duration // 提前发送歌词的时间
	LyricsTick        time.Duration
	GracePeriod       time.Duration // 队列空后断开前的等待
	RetentionInterval int           // 每多少次写入检查一次
	RetentionBatch    int
	LyricsLogCap      int64
	PlayHistoryCap    int64
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if v, err := strconv.ParseBool(value); err == nil {
			return v
		}
	}
	return fallback
}

// getEnvDuration 支持 "500ms"、"2s" 这样的写法
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	envFile := getEnv("ENV_FILE", ".env")
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("No %s file found, relying on existing environment variables and defaults.", envFile)
	}
	cfg := fromEnv()
	cfg.EnvFile = envFile
	return cfg
}

func fromEnv() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "logs/guildfm.log"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "guildfm"),

		RedisHost:      getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		LyricsCacheTTL: getEnvDuration("LYRICS_CACHE_TTL", 24*time.Hour),

		LavalinkURL:      getEnv("LAVALINK_URL", "http://127.0.0.1:2333"),
		LavalinkPassword: getEnv("LAVALINK_PASSWORD", "youshallnotpass"),
		BotUserID:        getEnv("BOT_USER_ID", ""),
		ClientName:       getEnv("CLIENT_NAME", "GuildFM/1.0"),

		DiscordAPIURL:   getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
		DiscordBotToken: os.Getenv("DISCORD_BOT_TOKEN"),
		WebhookName:     getEnv("LYRICS_WEBHOOK_NAME", "Lyrics Bot"),

		LRCLibURL:     getEnv("LRCLIB_URL", "https://lrclib.net"),
		NeteaseAPIURL: getEnv("NETEASE_API_URL", ""),
		GeniusAPIURL:  getEnv("GENIUS_API_URL", "https://api.genius.com"),
		GeniusWebURL:  getEnv("GENIUS_WEB_URL", "https://genius.com"),
		GeniusAPIKey:  os.Getenv("GENIUS_API_KEY"),
		LyricsTimeout: getEnvDuration("LYRICS_TIMEOUT", 5*time.Second),

		JWTSecret:             getEnv("JWT_SECRET", ""),
		DashboardPasswordHash: os.Getenv("DASHBOARD_PASSWORD_HASH"),
		TokenTTL:              getEnvDuration("TOKEN_TTL", 24*time.Hour),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "guildfm-archive"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		Tunables: tunablesFromEnv(),
	}
}

func tunablesFromEnv() Tunables {
	return Tunables{
		LyricsOffset:      getEnvDuration("LYRICS_OFFSET", 500*time.Millisecond),
		LyricsTick:        getEnvDuration("LYRICS_TICK", 100*time.Millisecond),
		GracePeriod:       getEnvDuration("DISCONNECT_GRACE", 2*time.Second),
		RetentionInterval: getEnvInt("RETENTION_CHECK_INTERVAL", 100),
		RetentionBatch:    getEnvInt("RETENTION_BATCH_SIZE", 1000),
		LyricsLogCap:      getEnvInt64("LYRICS_LOG_CAP", 100000),
		PlayHistoryCap:    getEnvInt64("PLAY_HISTORY_CAP", 200000),
	}
}

// ArchiveEnabled MinIO 归档是否配置
func (c *Config) ArchiveEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioAccessKey != "" && c.MinioSecretKey != ""
}
