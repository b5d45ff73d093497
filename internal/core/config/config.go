// Package config loads pipeline settings from the environment.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type PlanetCfg struct {
	APIKey  string
	BaseURL string
}

type SearchCfg struct {
	Name            string
	ItemTypes       []string
	CloudCoverMax   float64
	ClearPercentMin float64
	ClearPercentMax float64
	StdQuality      bool
	Instruments     []string
	Assets          []string
}

type OrderCfg struct {
	NamePrefix      string
	ProductBundle   string
	ItemType        string
	Resolution      float64 // 0 keeps the native resolution
	Kernel          string
	Clip            bool
	Composite       bool
	Reproject       bool
	ArchiveTemplate string
	SingleArchive   bool
}

type OrchestratorCfg struct {
	PollDelay   time.Duration
	MaxAttempts int // 0 means unlimited
	Concurrency int // 0 means one goroutine per job
	Overwrite   bool
}

type JobStoreCfg struct {
	Driver    string // memory or redis
	RedisAddr string
	TTL       time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
}

type Config struct {
	LogLevel   string
	LogConsole bool
	DataPath   string
	OpsAddr    string

	TargetCRS          string
	CoverageThreshold  float64
	CoverageTolerance  float64
	H3GapRes           int
	FootprintCacheSize int

	Planet       PlanetCfg
	Search       SearchCfg
	Order        OrderCfg
	Orchestrator OrchestratorCfg
	JobStore     JobStoreCfg
	Events       EventsCfg
}

func FromEnv() Config {
	gapRes := getint("H3_GAP_RES", -1)
	if gapRes > 15 {
		gapRes = 15
	}

	return Config{
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		DataPath:   getenv("DATA_PATH", "data"),
		OpsAddr:    getenv("OPS_ADDR", ""),

		TargetCRS:          getenv("TARGET_CRS", "EPSG:6933"),
		CoverageThreshold:  getfloat("COVERAGE_THRESHOLD", 100.0),
		CoverageTolerance:  getfloat("COVERAGE_TOLERANCE", 1e-6),
		H3GapRes:           gapRes,
		FootprintCacheSize: getint("FOOTPRINT_CACHE_SIZE", 4096),

		Planet: PlanetCfg{
			APIKey:  getenv("PL_API_KEY", ""),
			BaseURL: getenv("PL_API_URL", "https://api.planet.com"),
		},
		Search: SearchCfg{
			Name:            getenv("SEARCH_NAME", ""),
			ItemTypes:       split(getenv("ITEM_TYPES", "PSScene")),
			CloudCoverMax:   getfloat("CLOUD_COVER_MAX", 0.1),
			ClearPercentMin: getfloat("CLEAR_PERCENT_MIN", 0),
			ClearPercentMax: getfloat("CLEAR_PERCENT_MAX", 100),
			StdQuality:      getbool("STD_QUALITY", true),
			Instruments:     split(getenv("INSTRUMENTS", "")),
			Assets:          split(getenv("ASSETS", "")),
		},
		Order: OrderCfg{
			NamePrefix:      getenv("ORDER_NAME", "planet-pipeline"),
			ProductBundle:   getenv("PRODUCT_BUNDLE", "analytic_8b_sr_udm2"),
			ItemType:        getenv("ORDER_ITEM_TYPE", "PSScene"),
			Resolution:      getfloat("ORDER_RESOLUTION", 0),
			Kernel:          getenv("ORDER_KERNEL", "cubic"),
			Clip:            getbool("ORDER_CLIP", true),
			Composite:       getbool("ORDER_COMPOSITE", true),
			Reproject:       getbool("ORDER_REPROJECT", true),
			ArchiveTemplate: getenv("ARCHIVE_TEMPLATE", "{token}.zip"),
			SingleArchive:   getbool("ARCHIVE_SINGLE", true),
		},
		Orchestrator: OrchestratorCfg{
			PollDelay:   getduration("POLL_DELAY", 11*time.Second),
			MaxAttempts: getint("POLL_MAX_ATTEMPTS", 0),
			Concurrency: getint("ORDER_CONCURRENCY", 0),
			Overwrite:   getbool("DOWNLOAD_OVERWRITE", false),
		},
		JobStore: JobStoreCfg{
			Driver:    strings.ToLower(getenv("JOBSTORE_DRIVER", "memory")),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("JOBSTORE_TTL", 7*24*time.Hour),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: split(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "planet-order-jobs"),
			Queue:   getint("EVENTS_QUEUE", 1024),
		},
	}
}

func (c Config) ImagesDir() string        { return filepath.Join(c.DataPath, "images") }
func (c Config) SearchResultsDir() string { return filepath.Join(c.DataPath, "search_results") }
func (c Config) LogsDir() string          { return filepath.Join(c.DataPath, "logs") }

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
