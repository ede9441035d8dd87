package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally from a
// .env file, which is allowed to override the existing OS environment so
// local development can deterministically pin runtime behavior), then
// layers an optional YAML file on top for settings env vars do not cover,
// and finally applies built-in defaults for anything still unset.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	cfg.Server.Host = strings.TrimSpace(os.Getenv("HOST"))
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Server.Port = n
		}
	}

	cfg.LLMClient.Provider = strings.TrimSpace(os.Getenv("LLM_PROVIDER"))
	if v := strings.TrimSpace(os.Getenv("FALLBACK_ENABLED")); v != "" && !parseBool(v) {
		cfg.LLMClient.FallbackProvider = ""
	} else {
		cfg.LLMClient.FallbackProvider = strings.TrimSpace(os.Getenv("FALLBACK_KEY"))
	}
	if v := strings.TrimSpace(os.Getenv("MAX_TOKENS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMClient.MaxOutputTokens = n
		}
	}

	cfg.LLMClient.Anthropic.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	cfg.LLMClient.Anthropic.Model = strings.TrimSpace(os.Getenv("ANTHROPIC_MODEL"))
	cfg.LLMClient.Anthropic.BaseURL = strings.TrimSpace(os.Getenv("ANTHROPIC_BASE_URL"))

	cfg.LLMClient.OpenAI.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.LLMClient.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	cfg.LLMClient.OpenAI.BaseURL = firstNonEmpty(os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_API_BASE_URL"))

	cfg.LLMClient.Google.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_LLM_API_KEY"))
	cfg.LLMClient.Google.Model = strings.TrimSpace(os.Getenv("GOOGLE_LLM_MODEL"))
	cfg.LLMClient.Google.BaseURL = strings.TrimSpace(os.Getenv("GOOGLE_LLM_BASE_URL"))
	if v := strings.TrimSpace(os.Getenv("GOOGLE_LLM_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLMClient.Google.Timeout = n
		}
	}

	cfg.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.Redis.Password = strings.TrimSpace(os.Getenv("REDIS_PASSWORD"))
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_TLS_INSECURE_SKIP_VERIFY")); v != "" {
		cfg.Redis.TLSInsecureSkipVerify = parseBool(v)
	}

	cfg.Postgres.DSN = firstNonEmpty(os.Getenv("TICKET_DB_DSN"), os.Getenv("DATABASE_URL"), os.Getenv("POSTGRES_DSN"))
	cfg.SQLite.Path = strings.TrimSpace(os.Getenv("HOT_STORE_PATH"))

	cfg.S3.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	cfg.S3.Region = strings.TrimSpace(os.Getenv("S3_REGION"))
	cfg.S3.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET"))
	cfg.S3.Prefix = strings.TrimSpace(os.Getenv("S3_PREFIX"))
	cfg.S3.AccessKey = strings.TrimSpace(os.Getenv("S3_ACCESS_KEY"))
	cfg.S3.SecretKey = strings.TrimSpace(os.Getenv("S3_SECRET_KEY"))
	if v := strings.TrimSpace(os.Getenv("S3_USE_PATH_STYLE")); v != "" {
		cfg.S3.UsePathStyle = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("S3_TLS_INSECURE_SKIP_VERIFY")); v != "" {
		cfg.S3.TLSInsecureSkipVerify = parseBool(v)
	}
	cfg.S3.SSE.Mode = strings.TrimSpace(os.Getenv("S3_SSE_MODE"))
	cfg.S3.SSE.KMSKeyID = strings.TrimSpace(os.Getenv("S3_SSE_KMS_KEY_ID"))

	cfg.Kafka.Brokers = firstNonEmpty(os.Getenv("KAFKA_BROKERS"), os.Getenv("KAFKA_BOOTSTRAP_SERVERS"))
	cfg.Kafka.WorkflowTopic = strings.TrimSpace(os.Getenv("KAFKA_WORKFLOW_TOPIC"))
	cfg.Kafka.DLQTopic = strings.TrimSpace(os.Getenv("KAFKA_DLQ_TOPIC"))

	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_PER_MINUTE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_TOKENS_PER_HOUR")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.RateLimit.TokensPerHour = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WS_MSG_PER_MINUTE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.RateLimit.WSMessagesPerMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_VOICE_PER_MINUTE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.RateLimit.VoiceInputPerMin = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.RateLimit.Burst = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("MAX_MESSAGES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.MaxMessages = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("KEEP_RECENT")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.KeepRecent = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SUMMARY_TRIGGER")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.SummaryTrigger = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_HOURS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.SessionTTLHours = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MEMORY_INBOX_SIZE")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Memory.InboxSize = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("WORKFLOW_CONCURRENCY")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Workflow.Concurrency = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("ALERT_ERROR_RATE")); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Monitoring.AlertErrorRate = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALERT_P95_MS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Monitoring.AlertP95MS = n
		}
	}

	cfg.Observability.ServiceName = strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME"))
	cfg.Observability.ServiceVersion = strings.TrimSpace(os.Getenv("SERVICE_VERSION"))
	cfg.Observability.Environment = strings.TrimSpace(os.Getenv("ENVIRONMENT"))
	cfg.Observability.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))

	if err := mergeYAMLFile(&cfg); err != nil {
		return Config{}, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// mergeYAMLFile loads an optional static config file (path from
// SUPPORTD_CONFIG, defaulting to config.yaml / config.yml in the working
// directory) and fills in any field still at its zero value. Env vars take
// precedence; this only supplements what env did not set.
func mergeYAMLFile(cfg *Config) error {
	var paths []string
	if p := strings.TrimSpace(os.Getenv("SUPPORTD_CONFIG")); p != "" {
		paths = append(paths, p)
	}
	paths = append(paths, "config.yaml", "config.yml")

	var data []byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
		if os.IsNotExist(err) {
			continue
		}
		return fmt.Errorf("read %s: %w", p, err)
	}
	if len(data) == 0 {
		return nil
	}

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	mergeConfig(cfg, &fromFile)
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.LLMClient.Provider == "" {
		cfg.LLMClient.Provider = "anthropic"
	}
	if cfg.LLMClient.PrimaryMaxAttempts <= 0 {
		cfg.LLMClient.PrimaryMaxAttempts = 2
	}
	if cfg.LLMClient.FallbackMaxAttempts <= 0 {
		cfg.LLMClient.FallbackMaxAttempts = 1
	}
	if cfg.LLMClient.MaxOutputTokens <= 0 {
		cfg.LLMClient.MaxOutputTokens = 1024
	}
	if cfg.LLMClient.Anthropic.Model == "" {
		cfg.LLMClient.Anthropic.Model = "claude-3-5-sonnet-latest"
	}
	if cfg.LLMClient.OpenAI.Model == "" {
		cfg.LLMClient.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.LLMClient.Google.Model == "" {
		cfg.LLMClient.Google.Model = "gemini-1.5-flash"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "supportd-hot.db"
	}

	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}
	if cfg.S3.Prefix == "" {
		cfg.S3.Prefix = "archive"
	}

	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "localhost:9092"
	}
	if cfg.Kafka.WorkflowTopic == "" {
		cfg.Kafka.WorkflowTopic = "workflow.events"
	}
	if cfg.Kafka.DLQTopic == "" {
		cfg.Kafka.DLQTopic = cfg.Kafka.WorkflowTopic + ".dlq"
	}

	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 30
	}
	if cfg.RateLimit.TokensPerHour <= 0 {
		cfg.RateLimit.TokensPerHour = 10000
	}
	if cfg.RateLimit.WSMessagesPerMin <= 0 {
		cfg.RateLimit.WSMessagesPerMin = 60
	}
	if cfg.RateLimit.VoiceInputPerMin <= 0 {
		cfg.RateLimit.VoiceInputPerMin = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 10
	}

	if cfg.Memory.MaxMessages <= 0 {
		cfg.Memory.MaxMessages = 100
	}
	if cfg.Memory.KeepRecent <= 0 {
		cfg.Memory.KeepRecent = 20
	}
	if cfg.Memory.SummaryTrigger <= 0 {
		cfg.Memory.SummaryTrigger = 20
	}
	if cfg.Memory.SessionTTLHours <= 0 {
		cfg.Memory.SessionTTLHours = 24
	}
	if cfg.Memory.InboxSize <= 0 {
		cfg.Memory.InboxSize = 100
	}

	if cfg.Workflow.Concurrency <= 0 {
		cfg.Workflow.Concurrency = 4
	}

	if cfg.Monitoring.HealthyLatencyMS <= 0 {
		cfg.Monitoring.HealthyLatencyMS = 1000
	}
	if cfg.Monitoring.DegradedLatencyMS <= 0 {
		cfg.Monitoring.DegradedLatencyMS = 3000
	}
	if cfg.Monitoring.AlertErrorRate <= 0 {
		cfg.Monitoring.AlertErrorRate = 0.05
	}
	if cfg.Monitoring.AlertP95MS <= 0 {
		cfg.Monitoring.AlertP95MS = 2000
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "supportd"
	}
	if cfg.Observability.Environment == "" {
		cfg.Observability.Environment = "dev"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
}

func validate(cfg *Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMClient.Provider)) {
	case "anthropic", "openai", "google":
	default:
		return fmt.Errorf("llm provider must be one of anthropic, openai, or google (got %q)", cfg.LLMClient.Provider)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LLMClient.FallbackProvider)) {
	case "", "anthropic", "openai", "google":
	default:
		return fmt.Errorf("fallback llm provider must be one of anthropic, openai, or google (got %q)", cfg.LLMClient.FallbackProvider)
	}
	switch cfg.LLMClient.Provider {
	case "anthropic":
		if cfg.LLMClient.Anthropic.APIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case "openai":
		if cfg.LLMClient.OpenAI.APIKey == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case "google":
		if cfg.LLMClient.Google.APIKey == "" {
			return errors.New("GOOGLE_LLM_API_KEY is required when LLM_PROVIDER=google")
		}
	}
	return nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || s == "1" || strings.EqualFold(s, "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
