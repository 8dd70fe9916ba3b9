// 包 config：集中读取环境变量配置；入口先加载 .env 再调用 Load
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config：进程级配置快照，启动时读取一次
type Config struct {
	Addr      string
	AssetsDir string

	// BoundaryDriver 取值 sqlite（默认，WhosOnFirst 离线库）或 postgres（spr 表镜像）
	BoundaryDriver        string
	BoundaryDBPath        string
	BoundaryEnsureIndexes bool
	BoundaryDBURL         string
	TargetCountries       []string

	ExtractCmd           string
	ExtractConcurrency   int
	ExtractTimeout       time.Duration
	SourceArchiveURL     string
	BuildsURL            string
	ReconcileConcurrency int
	// AutoExtract 为空时交互式确认；yes/no 时跳过提示
	AutoExtract string

	BoundaryDownloadURL string

	CacheTTL time.Duration

	RateLimitEnabled bool
	RateLimitQPS     int
	CORSOrigin       string
}

const (
	DefaultExtractConcurrency   = 10
	DefaultReconcileConcurrency = 50
	DefaultWOFURL               = "https://data.geocode.earth/wof/dist/sqlite/whosonfirst-data-admin-latest.db.bz2"
	DefaultBuildsURL            = "https://build-metadata.protomaps.dev/builds.json"
)

// LoadDotenv：依次尝试加载 .env 与 data/env/.env，文件缺失时忽略
func LoadDotenv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

func Load() Config {
	c := Config{
		Addr:                  env("ADDR", ":3000"),
		AssetsDir:             env("ASSETS_DIR", "assets"),
		BoundaryDriver:        strings.ToLower(env("BOUNDARY_DRIVER", "sqlite")),
		BoundaryEnsureIndexes: os.Getenv("BOUNDARY_ENSURE_INDEXES") == "true",
		BoundaryDBURL:         os.Getenv("BOUNDARY_DB_URL"),
		TargetCountries:       splitList(os.Getenv("TARGET_COUNTRIES")),
		ExtractCmd:            env("EXTRACT_CMD", "pmtiles"),
		ExtractConcurrency:    envInt("EXTRACT_CONCURRENCY", DefaultExtractConcurrency),
		ExtractTimeout:        envDuration("EXTRACT_TIMEOUT", 30*time.Minute),
		SourceArchiveURL:      os.Getenv("SOURCE_ARCHIVE_URL"),
		BuildsURL:             env("PROTOMAPS_BUILDS_URL", DefaultBuildsURL),
		ReconcileConcurrency:  envInt("RECONCILE_CONCURRENCY", DefaultReconcileConcurrency),
		AutoExtract:           strings.ToLower(os.Getenv("AUTO_EXTRACT")),
		BoundaryDownloadURL:   env("WOF_DB_URL", DefaultWOFURL),
		CacheTTL:              envDuration("CACHE_TTL", 10*time.Minute),
		RateLimitEnabled:      os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:          envInt("RATE_LIMIT_QPS", 200),
		CORSOrigin:            env("CORS_ORIGIN", "*"),
	}
	c.BoundaryDBPath = env("BOUNDARY_DB_PATH", filepath.Join(c.AssetsDir, "whosonfirst-data-admin-latest.db"))
	return c
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// 解析失败或非正数时回退默认值
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
