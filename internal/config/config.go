// Package config defines the typed configuration surface for supportd and
// every internal package that needs runtime-tunable behavior.
package config

// AnthropicConfig configures the Anthropic provider client.
type AnthropicConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// OpenAIConfig configures the OpenAI provider client.
type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
}

// GoogleConfig configures the Google Gemini provider client.
type GoogleConfig struct {
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"baseURL"`
	Timeout int    `yaml:"timeoutSeconds"`
}

// LLMClientConfig selects and configures the primary/fallback provider pair
// used by internal/llm/providers.PrimaryFallback.
type LLMClientConfig struct {
	// Provider is the primary backend: "anthropic", "openai", or "google".
	Provider string `yaml:"provider"`
	// FallbackProvider is used when the primary is exhausted. Empty disables
	// fallback (FALLBACK_ENABLED=false).
	FallbackProvider string `yaml:"fallbackProvider"`
	// PrimaryMaxAttempts is how many attempts (including the first) are made
	// against the primary provider before switching to fallback. Default 2.
	PrimaryMaxAttempts int `yaml:"primaryMaxAttempts"`
	// FallbackMaxAttempts bounds attempts against the fallback provider.
	// Default 1.
	FallbackMaxAttempts int `yaml:"fallbackMaxAttempts"`
	MaxOutputTokens     int `yaml:"maxOutputTokens"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Google    GoogleConfig    `yaml:"google"`
}

// RedisConfig configures the warm key-value store.
type RedisConfig struct {
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password"`
	DB                    int    `yaml:"db"`
	TLSInsecureSkipVerify bool   `yaml:"tlsInsecureSkipVerify"`
}

// PostgresConfig configures the durable ticket store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SQLiteConfig holds the HOT_STORE_PATH setting. Nothing reads it at
// runtime: the hot actor store is Redis-backed.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// S3SSEConfig configures server-side encryption for objects written to the
// cold blob store.
type S3SSEConfig struct {
	// Mode is "", "sse-s3", or "sse-kms".
	Mode     string `yaml:"mode"`
	KMSKeyID string `yaml:"kmsKeyID"`
}

// S3Config configures the cold blob store used for session archives.
type S3Config struct {
	Endpoint              string      `yaml:"endpoint"`
	Region                string      `yaml:"region"`
	Bucket                string      `yaml:"bucket"`
	Prefix                string      `yaml:"prefix"`
	AccessKey             string      `yaml:"accessKey"`
	SecretKey             string      `yaml:"secretKey"`
	UsePathStyle          bool        `yaml:"usePathStyle"`
	TLSInsecureSkipVerify bool        `yaml:"tlsInsecureSkipVerify"`
	SSE                   S3SSEConfig `yaml:"sse"`
}

// KafkaConfig configures the async workflow/monitoring event bus.
type KafkaConfig struct {
	Brokers       string `yaml:"brokers"`
	WorkflowTopic string `yaml:"workflowTopic"`
	DLQTopic      string `yaml:"dlqTopic"`
}

// RateLimitConfig sets the per-window limits enforced by the security gate,
// keyed by (session, kind).
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	TokensPerHour     int `yaml:"tokensPerHour"`
	WSMessagesPerMin  int `yaml:"wsMessagesPerMinute"`
	VoiceInputPerMin  int `yaml:"voiceInputPerMinute"`
	Burst             int `yaml:"burst"`
}

// MemoryConfig controls conversation trimming/summarization and the
// per-session actor inbox.
type MemoryConfig struct {
	MaxMessages     int `yaml:"maxMessages"`
	KeepRecent      int `yaml:"keepRecent"`
	SummaryTrigger  int `yaml:"summaryTrigger"`
	SessionTTLHours int `yaml:"sessionTTLHours"`
	InboxSize       int `yaml:"inboxSize"`
}

// WorkflowConfig controls the step scheduler.
type WorkflowConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// MonitoringConfig holds health-check latency thresholds and alert rule
// defaults.
type MonitoringConfig struct {
	HealthyLatencyMS  int     `yaml:"healthyLatencyMS"`
	DegradedLatencyMS int     `yaml:"degradedLatencyMS"`
	AlertErrorRate    float64 `yaml:"alertErrorRate"`
	AlertP95MS        int     `yaml:"alertP95MS"`
}

// ObservabilityConfig controls logging and OTel export.
type ObservabilityConfig struct {
	ServiceName    string `yaml:"serviceName"`
	ServiceVersion string `yaml:"serviceVersion"`
	Environment    string `yaml:"environment"`
	LogLevel       string `yaml:"logLevel"`
	OTLPEndpoint   string `yaml:"otlpEndpoint"`
}

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Config is the fully resolved runtime configuration for supportd.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	LLMClient     LLMClientConfig     `yaml:"llmClient"`
	Redis         RedisConfig         `yaml:"redis"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	S3            S3Config            `yaml:"s3"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Memory        MemoryConfig        `yaml:"memory"`
	Workflow      WorkflowConfig      `yaml:"workflow"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Observability ObservabilityConfig `yaml:"observability"`
}
