package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the immutable, fully-defaulted application configuration. It is
// loaded once at startup and threaded explicitly into every component
// constructor rather than read back out of a package-level global.
type Config struct {
	Server          ServerConfig          `mapstructure:"server"`
	Auth            AuthConfig            `mapstructure:"auth"`
	Job             JobConfig             `mapstructure:"job"`
	Selector        SelectorConfig        `mapstructure:"selector"`
	FFmpeg          FFmpegConfig          `mapstructure:"ffmpeg"`
	Whisper         WhisperConfig         `mapstructure:"whisper"`
	Downloader      DownloaderConfig      `mapstructure:"downloader"`
	LLM             LLMConfig             `mapstructure:"llm"`
	Render          RenderConfig          `mapstructure:"render"`
	Storage         StorageConfig         `mapstructure:"storage"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Kafka           KafkaConfig           `mapstructure:"kafka"`
	ServiceRegistry ServiceRegistryConfig `mapstructure:"service_registry"`
	GRPCServer      GRPCServerConfig      `mapstructure:"grpc_server"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Log             LogConfig             `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AuthConfig holds the single shared secret checked against X-API-KEY.
type AuthConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// JobConfig controls the Registry/Worker's scheduling and scratch-space
// behaviour.
type JobConfig struct {
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	MaxQueueDepth     int           `mapstructure:"max_queue_depth"`
	TmpDir            string        `mapstructure:"tmp_dir"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	TranscribeTimeout time.Duration `mapstructure:"transcribe_timeout"`
}

// SelectorConfig governs the default Options values.
type SelectorConfig struct {
	DefaultTargetCount int     `mapstructure:"default_target_count"`
	DefaultMinSec      float64 `mapstructure:"default_min_sec"`
	DefaultMaxSec      float64 `mapstructure:"default_max_sec"`
	DefaultLanguage    string  `mapstructure:"default_language"`
	DefaultWhisperMode string  `mapstructure:"default_whisper_model"`
}

// FFmpegConfig configures the Renderer's encoder subprocess.
type FFmpegConfig struct {
	BinaryPath  string `mapstructure:"binary_path"`
	FFprobePath string `mapstructure:"ffprobe_path"`
}

// WhisperConfig configures the Transcriber's speech-to-text subprocess.
type WhisperConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
	ModelDir   string `mapstructure:"model_dir"`
}

// DownloaderConfig configures the URL-source Fetcher subprocess.
type DownloaderConfig struct {
	BinaryPath string `mapstructure:"binary_path"`
}

// LLMConfig configures the chat-completion gateway used by Selector
// Strategy A.
type LLMConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RenderConfig holds the system-wide default subtitle style; requests may
// override any of its four fields through Options.SubtitleStyle.
type RenderConfig struct {
	Subtitle SubtitleStyleConfig `mapstructure:"subtitle"`
}

type SubtitleStyleConfig struct {
	FontFamily   string `mapstructure:"font_family"`
	FontSize     int    `mapstructure:"font_size"`
	OutlineColor string `mapstructure:"outline_color"`
	FillColor    string `mapstructure:"fill_color"`
}

// StorageConfig is the S3-compatible remote-storage backing for both the
// drive-source Fetcher path and the Uploader.
type StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	SourceBucket    string `mapstructure:"source_bucket"`
	OutputBucket    string `mapstructure:"output_bucket"`
}

// RedisConfig backs the optional LLM-response cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	EnableTLS    bool          `mapstructure:"enable_tls"`
	TTL          time.Duration `mapstructure:"ttl"`
}

func (c *RedisConfig) GetRedisAddr() string {
	return fmtAddr(c.Host, c.Port)
}

// KafkaConfig backs the optional job-lifecycle event publisher.
type KafkaConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	BootstrapServers []string `mapstructure:"bootstrap_servers"`
	ClientID         string   `mapstructure:"client_id"`
	Topic            string   `mapstructure:"topic"`
}

// ServiceRegistryConfig backs optional etcd self-registration.
type ServiceRegistryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoints       []string      `mapstructure:"endpoints"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ServiceName     string        `mapstructure:"service_name"`
	ServiceID       string        `mapstructure:"service_id"`
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// GRPCServerConfig backs the internal grpc_health_v1 liveness surface.
type GRPCServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// DatabaseConfig backs the optional durable store adapter that mirrors
// terminal jobs for audit purposes. Never consulted by the core Registry.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	Charset         string        `mapstructure:"charset"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configPath (YAML) and CLIPFORGE_-prefixed environment
// overrides into a fully-defaulted Config.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("job.max_concurrent_jobs", 2)
	viper.SetDefault("job.max_queue_depth", 32)
	viper.SetDefault("selector.default_target_count", 5)
	viper.SetDefault("selector.default_min_sec", 25.0)
	viper.SetDefault("selector.default_max_sec", 45.0)
	viper.SetDefault("selector.default_language", "ja")
	viper.SetDefault("selector.default_whisper_model", "small")
	viper.SetDefault("kafka.enabled", false)
	viper.SetDefault("kafka.client_id", "clipforge")
	viper.SetDefault("kafka.topic", "clipforge.job-lifecycle")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("service_registry.enabled", false)
	viper.SetDefault("service_registry.service_name", "clipforge")
	viper.SetDefault("grpc_server.enabled", true)
	viper.SetDefault("database.enabled", false)

	viper.SetEnvPrefix("CLIPFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	return &cfg, nil
}

// normalize fills in defaults that depend on other fields or that viper's
// SetDefault cannot express (zero-value structs, derived paths).
func (c *Config) normalize() {
	if c.Job.TmpDir == "" {
		c.Job.TmpDir = "/tmp/clipforge"
	}
	if c.Job.JobTimeout <= 0 {
		c.Job.JobTimeout = 30 * time.Minute
	}
	if c.Job.TranscribeTimeout <= 0 {
		c.Job.TranscribeTimeout = 30 * time.Minute
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.FFmpeg.BinaryPath == "" {
		c.FFmpeg.BinaryPath = "ffmpeg"
	}
	if c.FFmpeg.FFprobePath == "" {
		c.FFmpeg.FFprobePath = "ffprobe"
	}
	if c.Whisper.BinaryPath == "" {
		c.Whisper.BinaryPath = "whisper.cpp"
	}
	if c.Downloader.BinaryPath == "" {
		c.Downloader.BinaryPath = "yt-dlp"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.Render.Subtitle.FontFamily == "" {
		c.Render.Subtitle.FontFamily = "Noto Sans CJK JP"
	}
	if c.Render.Subtitle.FontSize <= 0 {
		c.Render.Subtitle.FontSize = 44
	}
	if c.Render.Subtitle.OutlineColor == "" {
		c.Render.Subtitle.OutlineColor = "#000000"
	}
	if c.Render.Subtitle.FillColor == "" {
		c.Render.Subtitle.FillColor = "#FFFFFF"
	}
	if c.Redis.TTL <= 0 {
		c.Redis.TTL = 24 * time.Hour
	}
	if c.ServiceRegistry.TTL <= 0 {
		c.ServiceRegistry.TTL = 30 * time.Second
	}
	if c.ServiceRegistry.RefreshInterval <= 0 {
		c.ServiceRegistry.RefreshInterval = 10 * time.Second
	}
	if c.ServiceRegistry.DialTimeout <= 0 {
		c.ServiceRegistry.DialTimeout = 5 * time.Second
	}
	if c.GRPCServer.Host == "" {
		c.GRPCServer.Host = "0.0.0.0"
	}
	if c.GRPCServer.Port == 0 {
		c.GRPCServer.Port = 9092
	}
	if c.Database.Charset == "" {
		c.Database.Charset = "utf8mb4"
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func fmtAddr(host string, port int) string {
	if host == "" {
		return ""
	}
	return host + ":" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	buf := [20]byte{}
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
