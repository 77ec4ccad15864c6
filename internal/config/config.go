package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	SessData string `mapstructure:"SESSDATA"`
	Cookies  string `mapstructure:"COOKIES"`

	OutputDir    string `mapstructure:"OUTPUT_DIR"`
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	SQLitePath   string `mapstructure:"SQLITE_PATH"`
	MySQLDSN     string `mapstructure:"MYSQL_DSN"`
	PostgresDSN  string `mapstructure:"POSTGRES_DSN"`
	MongoURI     string `mapstructure:"MONGO_URI"`
	MongoDB      string `mapstructure:"MONGO_DB"`

	CacheBackend       string `mapstructure:"CACHE_BACKEND"`
	CacheDefaultTTLSec int    `mapstructure:"CACHE_DEFAULT_TTL_SEC"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	RedisPassword      string `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int    `mapstructure:"REDIS_DB"`
	RedisKeyPrefix     string `mapstructure:"REDIS_KEY_PREFIX"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	HttpTimeoutSec       int `mapstructure:"HTTP_TIMEOUT_SEC"`
	HttpRetryCount       int `mapstructure:"HTTP_RETRY_COUNT"`
	HttpRetryBaseDelayMs int `mapstructure:"HTTP_RETRY_BASE_DELAY_MS"`
	HttpRetryMaxDelayMs  int `mapstructure:"HTTP_RETRY_MAX_DELAY_MS"`

	DownloadTimeoutSec   int `mapstructure:"DOWNLOAD_TIMEOUT_SEC"`
	ImageConcurrency     int `mapstructure:"IMAGE_CONCURRENCY"`
	LiveMediaConcurrency int `mapstructure:"LIVE_MEDIA_CONCURRENCY"`
	EmojiConcurrency     int `mapstructure:"EMOJI_CONCURRENCY"`

	PageJitterMinMs int `mapstructure:"PAGE_JITTER_MIN_MS"`
	PageJitterMaxMs int `mapstructure:"PAGE_JITTER_MAX_MS"`
	DedupThreshold  int `mapstructure:"DEDUP_THRESHOLD"`

	NeedTop   bool `mapstructure:"NEED_TOP"`
	SaveMedia bool `mapstructure:"SAVE_MEDIA"`

	HostMidList    []string `mapstructure:"HOST_MID_LIST"`
	MaxConcurrency int      `mapstructure:"MAX_CONCURRENCY_NUM"`

	EnableIPProxy    bool   `mapstructure:"ENABLE_IP_PROXY"`
	IPProxyList      string `mapstructure:"IP_PROXY_LIST"`
	IPProxyFile      string `mapstructure:"IP_PROXY_FILE"`
	IPProxyPoolCount int    `mapstructure:"IP_PROXY_POOL_COUNT"`
}

var AppConfig Config

func LoadConfig(path string) error {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("SESSDATA", "")
	viper.SetDefault("COOKIES", "")
	viper.SetDefault("OUTPUT_DIR", "output")
	viper.SetDefault("STORE_BACKEND", "sqlite")
	viper.SetDefault("SQLITE_PATH", "data/bilibili_dynamic.db")
	viper.SetDefault("MYSQL_DSN", "")
	viper.SetDefault("POSTGRES_DSN", "")
	viper.SetDefault("MONGO_URI", "")
	viper.SetDefault("MONGO_DB", "bilibili_dynamic")
	viper.SetDefault("CACHE_BACKEND", "memory")
	viper.SetDefault("CACHE_DEFAULT_TTL_SEC", 600)
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_KEY_PREFIX", "dynamics_archiver:")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("HTTP_TIMEOUT_SEC", 60)
	viper.SetDefault("HTTP_RETRY_COUNT", 3)
	viper.SetDefault("HTTP_RETRY_BASE_DELAY_MS", 500)
	viper.SetDefault("HTTP_RETRY_MAX_DELAY_MS", 4000)
	viper.SetDefault("DOWNLOAD_TIMEOUT_SEC", 20)
	viper.SetDefault("IMAGE_CONCURRENCY", 6)
	viper.SetDefault("LIVE_MEDIA_CONCURRENCY", 3)
	viper.SetDefault("EMOJI_CONCURRENCY", 6)
	viper.SetDefault("PAGE_JITTER_MIN_MS", 3000)
	viper.SetDefault("PAGE_JITTER_MAX_MS", 5000)
	viper.SetDefault("DEDUP_THRESHOLD", 10)
	viper.SetDefault("NEED_TOP", false)
	viper.SetDefault("SAVE_MEDIA", true)
	viper.SetDefault("HOST_MID_LIST", []string{})
	viper.SetDefault("MAX_CONCURRENCY_NUM", 1)
	viper.SetDefault("ENABLE_IP_PROXY", false)
	viper.SetDefault("IP_PROXY_LIST", "")
	viper.SetDefault("IP_PROXY_FILE", "")
	viper.SetDefault("IP_PROXY_POOL_COUNT", 1)

	viper.SetEnvPrefix("DYNAMICS_ARCHIVER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return err
	}
	Normalize(&AppConfig)
	return nil
}

func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.PageJitterMaxMs < cfg.PageJitterMinMs {
		cfg.PageJitterMaxMs = cfg.PageJitterMinMs
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = 10
	}
}

// CookieHeader builds the cookie header value, preferring the full COOKIES
// string and falling back to a bare SESSDATA pair.
func CookieHeader() string {
	if ck := strings.TrimSpace(AppConfig.Cookies); ck != "" {
		return ck
	}
	if sd := strings.TrimSpace(AppConfig.SessData); sd != "" {
		return "SESSDATA=" + sd
	}
	return ""
}
