// -----------------------------------------------------------------------
// Last Modified: Tuesday, 10th February 2026 9:12:00 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config is the full application configuration. Values are resolved in
// order: defaults -> config file(s) -> environment -> CLI flags.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Arxiv       ArxivConfig     `toml:"arxiv"`
	LLM         LLMConfig       `toml:"llm"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	PDF         PDFConfig       `toml:"pdf"`
	Comic       ComicConfig     `toml:"comic"`
}

type ServerConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

type StorageConfig struct {
	// Path is the BadgerDB directory for papers and job registries.
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output" validate:"min=1,dive,oneof=stdout console file"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval" validate:"required"`
	Concurrency       int    `toml:"concurrency" validate:"min=1"`
	VisibilityTimeout string `toml:"visibility_timeout" validate:"required"`
	MaxReceive        int    `toml:"max_receive" validate:"min=1"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Timezone string `toml:"timezone"`

	// CrawlSchedule is the recurring crawl trigger, standard 5-field cron.
	CrawlSchedule string `toml:"crawl_schedule" validate:"required"`

	// HousekeepingSchedule drives registry purging and stale-running
	// reconciliation.
	HousekeepingSchedule string `toml:"housekeeping_schedule" validate:"required"`

	// StaleRunningAfter: a running entity state or started record older
	// than this is reconciled on the next housekeeping pass.
	StaleRunningAfter string `toml:"stale_running_after" validate:"required"`

	// MisfireGrace: a recurring tick staler than this is dropped, not run.
	MisfireGrace string `toml:"misfire_grace" validate:"required"`

	// OneShotMisfireGrace: same policy for one-shot enrichment jobs.
	OneShotMisfireGrace string `toml:"one_shot_misfire_grace" validate:"required"`
}

type ArxivConfig struct {
	BaseURL         string   `toml:"base_url" validate:"required,url"`
	Keywords        []string `toml:"keywords" validate:"min=1"`
	MaxResults      int      `toml:"max_results" validate:"min=1,max=2000"`
	PageSize        int      `toml:"page_size" validate:"min=1,max=2000"`
	RequestInterval string   `toml:"request_interval" validate:"required"`
	Timeout         string   `toml:"timeout" validate:"required"`
}

type LLMConfig struct {
	// Model selects the provider by prefix (gemini-* or claude-*).
	Model string `toml:"model" validate:"required"`

	// Language is the target language for title/abstract translation and
	// summaries.
	Language string `toml:"language" validate:"required"`
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float64 `toml:"temperature"`
}

type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

type PDFConfig struct {
	Dir         string `toml:"dir" validate:"required"`
	MaxRetries  int    `toml:"max_retries" validate:"min=1"`
	Timeout     string `toml:"timeout" validate:"required"`
	MinInterval string `toml:"min_interval" validate:"required"`
}

type ComicConfig struct {
	Dir        string `toml:"dir" validate:"required"`
	Model      string `toml:"model" validate:"required"`
	MaxRetries int    `toml:"max_retries" validate:"min=1"`
	RetryDelay string `toml:"retry_delay" validate:"required"`
}

// NewDefaultConfig returns the built-in defaults, matching a local
// single-process deployment.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8085,
		},
		Storage: StorageConfig{
			Path:           "./data/colligo",
			ResetOnStartup: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Queue: QueueConfig{
			PollInterval:      "2s",
			Concurrency:       2,
			VisibilityTimeout: "10m",
			MaxReceive:        3,
		},
		Scheduler: SchedulerConfig{
			Enabled:              true,
			Timezone:             "UTC",
			CrawlSchedule:        "0 6 * * *",
			HousekeepingSchedule: "*/30 * * * *",
			StaleRunningAfter:    "30m",
			MisfireGrace:         "5m",
			OneShotMisfireGrace:  "1h",
		},
		Arxiv: ArxivConfig{
			BaseURL:         "https://export.arxiv.org/api/query",
			Keywords:        []string{"vector database", "retrieval augmented generation", "agent"},
			MaxResults:      100,
			PageSize:        100,
			RequestInterval: "3s",
			Timeout:         "30s",
		},
		LLM: LLMConfig{
			Model:    "gemini-2.5-flash",
			Language: "English",
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Timeout:     "120s",
			Temperature: 0.3,
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
		PDF: PDFConfig{
			Dir:         "./data/pdfs",
			MaxRetries:  3,
			Timeout:     "30s",
			MinInterval: "10s",
		},
		Comic: ComicConfig{
			Dir:        "./data/comics",
			Model:      "gemini-2.5-flash-image",
			MaxRetries: 10,
			RetryDelay: "3s",
		},
	}
}

// LoadFromFiles loads configuration starting from defaults, merging each
// file in order (later files override earlier ones), then applying
// environment overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies COLLIGO_* environment variables on top of the
// file configuration.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COLLIGO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("COLLIGO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("COLLIGO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if path := os.Getenv("COLLIGO_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if interval := os.Getenv("COLLIGO_QUEUE_POLL_INTERVAL"); interval != "" {
		config.Queue.PollInterval = interval
	}
	if concurrency := os.Getenv("COLLIGO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}

	if enabled := os.Getenv("COLLIGO_SCHEDULER_ENABLED"); enabled != "" {
		config.Scheduler.Enabled = enabled == "true" || enabled == "1"
	}
	if schedule := os.Getenv("COLLIGO_CRAWL_SCHEDULE"); schedule != "" {
		config.Scheduler.CrawlSchedule = schedule
	}

	if keywords := os.Getenv("COLLIGO_ARXIV_KEYWORDS"); keywords != "" {
		parts := strings.Split(keywords, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			config.Arxiv.Keywords = cleaned
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if model := os.Getenv("COLLIGO_LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
}

// ApplyFlagOverrides applies command-line overrides, the highest priority
// in the resolution chain.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express (cron expressions, duration strings).
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	for name, expr := range map[string]string{
		"scheduler.crawl_schedule":        c.Scheduler.CrawlSchedule,
		"scheduler.housekeeping_schedule": c.Scheduler.HousekeepingSchedule,
	} {
		if err := ValidateCronSchedule(expr); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	for name, d := range map[string]string{
		"queue.poll_interval":              c.Queue.PollInterval,
		"queue.visibility_timeout":         c.Queue.VisibilityTimeout,
		"scheduler.stale_running_after":    c.Scheduler.StaleRunningAfter,
		"scheduler.misfire_grace":          c.Scheduler.MisfireGrace,
		"scheduler.one_shot_misfire_grace": c.Scheduler.OneShotMisfireGrace,
		"arxiv.request_interval":           c.Arxiv.RequestInterval,
		"arxiv.timeout":                    c.Arxiv.Timeout,
		"pdf.timeout":                      c.PDF.Timeout,
		"pdf.min_interval":                 c.PDF.MinInterval,
		"comic.retry_delay":                c.Comic.RetryDelay,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	return nil
}

// ValidateCronSchedule parses a standard 5-field cron expression.
func ValidateCronSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("schedule is empty")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// Duration returns the parsed duration for a config string, falling back
// to def when unset or unparsable. Validate catches bad values at load
// time; the fallback keeps call sites total.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}
