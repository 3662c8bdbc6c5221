package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 汇总服务的全部配置，仅从环境变量读取（带默认值）。
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Auth       AuthConfig       `mapstructure:"auth"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	JobOffer   JobOfferConfig   `mapstructure:"joboffer"`
	Clamd      ClamdConfig      `mapstructure:"clamd"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port                  int      `mapstructure:"port"`
	AllowedOrigins        []string `mapstructure:"allowed_origins"`
	GenerateLimitPerHour  int      `mapstructure:"generate_rate_limit_per_hour"`
	MaxMultipartMemoryMiB int      `mapstructure:"max_multipart_memory_mib"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	LogLevel string `mapstructure:"log_level"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 描述访问令牌的校验与签发参数。
// 私钥只在运维 CLI 签发令牌时需要，API 进程仅校验。
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LLMConfig 描述可用的大模型提供方。
type LLMConfig struct {
	DefaultProvider string       `mapstructure:"default_provider"`
	OpenAI          OpenAIConfig `mapstructure:"openai"`
	Gemini          GeminiConfig `mapstructure:"gemini"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// GenerationConfig 控制生成流程的超时、保留期与额度。
type GenerationConfig struct {
	ExtractTimeout     time.Duration `mapstructure:"extract_timeout"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	LLMTimeout         time.Duration `mapstructure:"llm_timeout"`
	RenderTimeout      time.Duration `mapstructure:"render_timeout"`
	StorageTimeout     time.Duration `mapstructure:"storage_timeout"`
	RetentionDays      int           `mapstructure:"retention_days"`
	ScratchDir         string        `mapstructure:"scratch_dir"`
	MaxCVBytes         int64         `mapstructure:"max_cv_bytes"`
	DefaultPDFCredits  int           `mapstructure:"default_pdf_credits"`
	DefaultTextCredits int           `mapstructure:"default_text_credits"`
}

// Retention 返回历史文件保留期。
func (g GenerationConfig) Retention() time.Duration {
	return time.Duration(g.RetentionDays) * 24 * time.Hour
}

// JobOfferConfig 控制职位抓取。
type JobOfferConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type ClamdConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// WorkerConfig 控制 asynq worker 与定时任务。
type WorkerConfig struct {
	Concurrency  int    `mapstructure:"concurrency"`
	CleanupCron  string `mapstructure:"cleanup_cron"`
	CleanupBatch int    `mapstructure:"cleanup_batch"`
}

// LogConfig 控制 slog 输出与 Sentry 上报。
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	SentryDSN   string `mapstructure:"sentry_dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:8000", "http://127.0.0.1:8000"})
	v.SetDefault("api.generate_rate_limit_per_hour", 30)
	v.SetDefault("api.max_multipart_memory_mib", 16)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "cvlm")
	v.SetDefault("database.user", "cvlm")
	v.SetDefault("database.password", "cvlm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "cvlm")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)

	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.issuer", "cvlm")
	v.SetDefault("auth.access_token_ttl", 24*time.Hour)

	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.gemini.model", "gemini-2.0-flash")
	v.SetDefault("llm.gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")

	v.SetDefault("generation.extract_timeout", 30*time.Second)
	v.SetDefault("generation.fetch_timeout", 15*time.Second)
	v.SetDefault("generation.llm_timeout", 90*time.Second)
	v.SetDefault("generation.render_timeout", 60*time.Second)
	v.SetDefault("generation.storage_timeout", 30*time.Second)
	v.SetDefault("generation.retention_days", 90)
	v.SetDefault("generation.scratch_dir", "data/scratch")
	v.SetDefault("generation.max_cv_bytes", 10*1024*1024)
	v.SetDefault("generation.default_pdf_credits", 10)
	v.SetDefault("generation.default_text_credits", 10)

	v.SetDefault("joboffer.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("joboffer.http_timeout", 10*time.Second)
	v.SetDefault("joboffer.cache_ttl", 30*time.Minute)

	v.SetDefault("clamd.enabled", false)
	v.SetDefault("clamd.address", "tcp://localhost:3310")

	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.cleanup_cron", "@daily")
	v.SetDefault("worker.cleanup_batch", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "development")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "cvlm-api")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                         "API_PORT",
		"api.allowed_origins":              "API_ALLOWED_ORIGINS",
		"api.generate_rate_limit_per_hour": "API_GENERATE_RATE_LIMIT_PER_HOUR",
		"api.max_multipart_memory_mib":     "API_MAX_MULTIPART_MEMORY_MIB",
		"database.host":                    "DATABASE_HOST",
		"database.port":                    "DATABASE_PORT",
		"database.name":                    "POSTGRES_DB",
		"database.user":                    "POSTGRES_USER",
		"database.password":                "POSTGRES_PASSWORD",
		"database.sslmode":                 "DATABASE_SSLMODE",
		"database.log_level":               "DATABASE_LOG_LEVEL",
		"redis.host":                       "REDIS_HOST",
		"redis.port":                       "REDIS_PORT",
		"redis.password":                   "REDIS_PASSWORD",
		"redis.db":                         "REDIS_DB",
		"minio.endpoint":                   "MINIO_ENDPOINT",
		"minio.public_endpoint":            "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":              "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":          "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                    "MINIO_USE_SSL",
		"minio.bucket":                     "MINIO_BUCKET",
		"minio.region":                     "MINIO_REGION",
		"minio.bucket_lookup":              "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":         "MINIO_AUTO_CREATE_BUCKET",
		"auth.public_key_path":             "JWT_PUBLIC_KEY_PATH",
		"auth.private_key_path":            "JWT_PRIVATE_KEY_PATH",
		"auth.issuer":                      "JWT_ISSUER",
		"auth.access_token_ttl":            "JWT_ACCESS_TOKEN_TTL",
		"llm.default_provider":             "LLM_DEFAULT_PROVIDER",
		"llm.openai.api_key":               "OPENAI_API_KEY",
		"llm.openai.model":                 "OPENAI_MODEL",
		"llm.openai.base_url":              "OPENAI_BASE_URL",
		"llm.gemini.api_key":               "GEMINI_API_KEY",
		"llm.gemini.model":                 "GEMINI_MODEL",
		"llm.gemini.base_url":              "GEMINI_BASE_URL",
		"generation.extract_timeout":       "GENERATION_EXTRACT_TIMEOUT",
		"generation.fetch_timeout":         "GENERATION_FETCH_TIMEOUT",
		"generation.llm_timeout":           "GENERATION_LLM_TIMEOUT",
		"generation.render_timeout":        "GENERATION_RENDER_TIMEOUT",
		"generation.storage_timeout":       "GENERATION_STORAGE_TIMEOUT",
		"generation.retention_days":        "GENERATION_RETENTION_DAYS",
		"generation.scratch_dir":           "GENERATION_SCRATCH_DIR",
		"generation.max_cv_bytes":          "GENERATION_MAX_CV_BYTES",
		"generation.default_pdf_credits":   "DEFAULT_PDF_CREDITS",
		"generation.default_text_credits":  "DEFAULT_TEXT_CREDITS",
		"joboffer.user_agent":              "JOBOFFER_USER_AGENT",
		"joboffer.http_timeout":            "JOBOFFER_HTTP_TIMEOUT",
		"joboffer.cache_ttl":               "JOBOFFER_CACHE_TTL",
		"clamd.enabled":                    "CLAMD_ENABLED",
		"clamd.address":                    "CLAMD_ADDRESS",
		"worker.concurrency":               "WORKER_CONCURRENCY",
		"worker.cleanup_cron":              "WORKER_CLEANUP_CRON",
		"worker.cleanup_batch":             "WORKER_CLEANUP_BATCH",
		"log.level":                        "LOG_LEVEL",
		"log.format":                       "LOG_FORMAT",
		"log.sentry_dsn":                   "SENTRY_DSN",
		"log.environment":                  "APP_ENV",
		"tracing.enabled":                  "OTEL_ENABLED",
		"tracing.otlp_endpoint":            "OTEL_EXPORTER_OTLP_ENDPOINT",
		"tracing.service_name":             "OTEL_SERVICE_NAME",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func normalize(cfg *Config) {
	cfg.LLM.DefaultProvider = strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	// 环境变量里的逗号列表按逗号拆分并去掉空白。
	origins := make([]string, 0, len(cfg.API.AllowedOrigins))
	for _, raw := range cfg.API.AllowedOrigins {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
	}
	cfg.API.AllowedOrigins = origins
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if cfg.API.GenerateLimitPerHour < 0 {
		return errors.New("generate rate limit must not be negative")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	switch cfg.LLM.DefaultProvider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unsupported default llm provider %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Generation.RetentionDays <= 0 {
		return errors.New("generation retention days must be positive")
	}
	if cfg.Generation.MaxCVBytes <= 0 {
		return errors.New("generation max cv bytes must be positive")
	}
	if cfg.Generation.DefaultPDFCredits < 0 || cfg.Generation.DefaultTextCredits < 0 {
		return errors.New("default credits must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"extract": cfg.Generation.ExtractTimeout,
		"fetch":   cfg.Generation.FetchTimeout,
		"llm":     cfg.Generation.LLMTimeout,
		"render":  cfg.Generation.RenderTimeout,
		"storage": cfg.Generation.StorageTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("generation %s timeout must be positive", name)
		}
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	return nil
}
