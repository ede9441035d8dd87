package config

// mergeConfig fills zero-valued string/int/float/bool fields in dst from src,
// recursing into nested struct sections. Env-sourced values in dst always
// win; src (the optional YAML file) only supplements what env left unset.
func mergeConfig(dst, src *Config) {
	mergeServer(&dst.Server, &src.Server)
	mergeLLMClient(&dst.LLMClient, &src.LLMClient)
	mergeRedis(&dst.Redis, &src.Redis)
	if dst.Postgres.DSN == "" {
		dst.Postgres.DSN = src.Postgres.DSN
	}
	if dst.SQLite.Path == "" {
		dst.SQLite.Path = src.SQLite.Path
	}
	mergeS3(&dst.S3, &src.S3)
	mergeKafka(&dst.Kafka, &src.Kafka)
	mergeRateLimit(&dst.RateLimit, &src.RateLimit)
	mergeMemory(&dst.Memory, &src.Memory)
	if dst.Workflow.Concurrency == 0 {
		dst.Workflow.Concurrency = src.Workflow.Concurrency
	}
	mergeMonitoring(&dst.Monitoring, &src.Monitoring)
	mergeObservability(&dst.Observability, &src.Observability)
}

func mergeServer(dst, src *ServerConfig) {
	if dst.Host == "" {
		dst.Host = src.Host
	}
	if dst.Port == 0 {
		dst.Port = src.Port
	}
}

func mergeLLMClient(dst, src *LLMClientConfig) {
	if dst.Provider == "" {
		dst.Provider = src.Provider
	}
	if dst.FallbackProvider == "" {
		dst.FallbackProvider = src.FallbackProvider
	}
	if dst.PrimaryMaxAttempts == 0 {
		dst.PrimaryMaxAttempts = src.PrimaryMaxAttempts
	}
	if dst.FallbackMaxAttempts == 0 {
		dst.FallbackMaxAttempts = src.FallbackMaxAttempts
	}
	if dst.MaxOutputTokens == 0 {
		dst.MaxOutputTokens = src.MaxOutputTokens
	}
	mergeAnthropic(&dst.Anthropic, &src.Anthropic)
	mergeOpenAI(&dst.OpenAI, &src.OpenAI)
	mergeGoogle(&dst.Google, &src.Google)
}

func mergeAnthropic(dst, src *AnthropicConfig) {
	if dst.APIKey == "" {
		dst.APIKey = src.APIKey
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if dst.BaseURL == "" {
		dst.BaseURL = src.BaseURL
	}
}

func mergeOpenAI(dst, src *OpenAIConfig) {
	if dst.APIKey == "" {
		dst.APIKey = src.APIKey
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if dst.BaseURL == "" {
		dst.BaseURL = src.BaseURL
	}
}

func mergeGoogle(dst, src *GoogleConfig) {
	if dst.APIKey == "" {
		dst.APIKey = src.APIKey
	}
	if dst.Model == "" {
		dst.Model = src.Model
	}
	if dst.BaseURL == "" {
		dst.BaseURL = src.BaseURL
	}
	if dst.Timeout == 0 {
		dst.Timeout = src.Timeout
	}
}

func mergeRedis(dst, src *RedisConfig) {
	if dst.Addr == "" {
		dst.Addr = src.Addr
	}
	if dst.Password == "" {
		dst.Password = src.Password
	}
	if dst.DB == 0 {
		dst.DB = src.DB
	}
	if !dst.TLSInsecureSkipVerify {
		dst.TLSInsecureSkipVerify = src.TLSInsecureSkipVerify
	}
}

func mergeS3(dst, src *S3Config) {
	if dst.Endpoint == "" {
		dst.Endpoint = src.Endpoint
	}
	if dst.Region == "" {
		dst.Region = src.Region
	}
	if dst.Bucket == "" {
		dst.Bucket = src.Bucket
	}
	if dst.Prefix == "" {
		dst.Prefix = src.Prefix
	}
	if dst.AccessKey == "" {
		dst.AccessKey = src.AccessKey
	}
	if dst.SecretKey == "" {
		dst.SecretKey = src.SecretKey
	}
	if !dst.UsePathStyle {
		dst.UsePathStyle = src.UsePathStyle
	}
	if !dst.TLSInsecureSkipVerify {
		dst.TLSInsecureSkipVerify = src.TLSInsecureSkipVerify
	}
	if dst.SSE.Mode == "" {
		dst.SSE.Mode = src.SSE.Mode
	}
	if dst.SSE.KMSKeyID == "" {
		dst.SSE.KMSKeyID = src.SSE.KMSKeyID
	}
}

func mergeKafka(dst, src *KafkaConfig) {
	if dst.Brokers == "" {
		dst.Brokers = src.Brokers
	}
	if dst.WorkflowTopic == "" {
		dst.WorkflowTopic = src.WorkflowTopic
	}
	if dst.DLQTopic == "" {
		dst.DLQTopic = src.DLQTopic
	}
}

func mergeRateLimit(dst, src *RateLimitConfig) {
	if dst.RequestsPerMinute == 0 {
		dst.RequestsPerMinute = src.RequestsPerMinute
	}
	if dst.TokensPerHour == 0 {
		dst.TokensPerHour = src.TokensPerHour
	}
	if dst.WSMessagesPerMin == 0 {
		dst.WSMessagesPerMin = src.WSMessagesPerMin
	}
	if dst.VoiceInputPerMin == 0 {
		dst.VoiceInputPerMin = src.VoiceInputPerMin
	}
	if dst.Burst == 0 {
		dst.Burst = src.Burst
	}
}

func mergeMemory(dst, src *MemoryConfig) {
	if dst.MaxMessages == 0 {
		dst.MaxMessages = src.MaxMessages
	}
	if dst.KeepRecent == 0 {
		dst.KeepRecent = src.KeepRecent
	}
	if dst.SummaryTrigger == 0 {
		dst.SummaryTrigger = src.SummaryTrigger
	}
	if dst.SessionTTLHours == 0 {
		dst.SessionTTLHours = src.SessionTTLHours
	}
	if dst.InboxSize == 0 {
		dst.InboxSize = src.InboxSize
	}
}

func mergeMonitoring(dst, src *MonitoringConfig) {
	if dst.HealthyLatencyMS == 0 {
		dst.HealthyLatencyMS = src.HealthyLatencyMS
	}
	if dst.DegradedLatencyMS == 0 {
		dst.DegradedLatencyMS = src.DegradedLatencyMS
	}
	if dst.AlertErrorRate == 0 {
		dst.AlertErrorRate = src.AlertErrorRate
	}
	if dst.AlertP95MS == 0 {
		dst.AlertP95MS = src.AlertP95MS
	}
}

func mergeObservability(dst, src *ObservabilityConfig) {
	if dst.ServiceName == "" {
		dst.ServiceName = src.ServiceName
	}
	if dst.ServiceVersion == "" {
		dst.ServiceVersion = src.ServiceVersion
	}
	if dst.Environment == "" {
		dst.Environment = src.Environment
	}
	if dst.LogLevel == "" {
		dst.LogLevel = src.LogLevel
	}
	if dst.OTLPEndpoint == "" {
		dst.OTLPEndpoint = src.OTLPEndpoint
	}
}
