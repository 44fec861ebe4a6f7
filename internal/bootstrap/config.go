package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/eleven-am/voice-callcenter/internal/paramstore"
)

const (
	GeneratorHTTP   = "http"
	GeneratorGemini = "gemini"
	GeneratorEcho   = "echo"
)

type Config struct {
	ServerAddr string
	GRPCAddr   string
	LogLevel   string

	ASRURL          string
	ASRKey          string
	ASRModel        string
	TTSURL          string
	TTSKey          string
	TTSModel        string
	TTSChunkTimeout time.Duration
	Voice           string
	Language        string

	GeneratorBackend  string
	LLMBaseURL        string
	LLMModel          string
	LLMAPIKey         string
	LLMClientID       string
	LLMClientSecret   string
	LLMTokenURL       string
	LLMKeyParam       string
	GeminiAPIKey      string
	GenerationTimeout time.Duration
	FallbackReply     string

	ConnectTimeout     time.Duration
	EnergyThreshold    float64
	BargeInMinSpeech   time.Duration
	BargeInMinChars    int
	MaxBufferedAudio   time.Duration
	EndedCallRetention time.Duration

	SSMParamPrefix string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		GRPCAddr:   getEnv("GRPC_ADDR", ":50051"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		ASRURL:          getEnv("ASR_URL", "ws://localhost:9001/v1/listen"),
		ASRKey:          getEnv("ASR_API_KEY", ""),
		ASRModel:        getEnv("ASR_MODEL", ""),
		TTSURL:          getEnv("TTS_URL", "ws://localhost:9002/v1/speak"),
		TTSKey:          getEnv("TTS_API_KEY", ""),
		TTSModel:        getEnv("TTS_MODEL", ""),
		TTSChunkTimeout: getEnvDuration("TTS_CHUNK_TIMEOUT", 10*time.Second),
		Voice:           getEnv("TTS_VOICE", ""),
		Language:        getEnv("LANGUAGE", "en"),

		GeneratorBackend:  getEnv("GENERATOR_BACKEND", GeneratorHTTP),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		LLMModel:          getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:         getEnv("LLM_API_KEY", ""),
		LLMClientID:       getEnv("LLM_CLIENT_ID", ""),
		LLMClientSecret:   getEnv("LLM_CLIENT_SECRET", ""),
		LLMTokenURL:       getEnv("LLM_TOKEN_URL", ""),
		LLMKeyParam:       getEnv("LLM_API_KEY_PARAM", ""),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 15*time.Second),
		FallbackReply:     getEnv("FALLBACK_REPLY", ""),

		ConnectTimeout:     getEnvDuration("ADAPTER_CONNECT_TIMEOUT", 10*time.Second),
		EnergyThreshold:    getEnvFloat("VAD_ENERGY_THRESHOLD", 0.02),
		BargeInMinSpeech:   getEnvDuration("BARGE_IN_MIN_SPEECH", 300*time.Millisecond),
		BargeInMinChars:    getEnvInt("BARGE_IN_MIN_PARTIAL_CHARS", 0),
		MaxBufferedAudio:   getEnvDuration("MAX_BUFFERED_AUDIO", 2*time.Second),
		EndedCallRetention: getEnvDuration("ENDED_CALL_RETENTION", 10*time.Minute),

		SSMParamPrefix: getEnv("SSM_PARAM_PREFIX", ""),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),
	}
}

// ProvideConfig loads the environment and, when SSM_PARAM_PREFIX is set,
// fills the remaining secrets from the parameter store.
func ProvideConfig() (*Config, *paramstore.Client, error) {
	cfg := LoadConfig()
	params, err := newParamStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	ResolveSecrets(cfg, params, slog.Default())
	return cfg, params, nil
}

// newParamStore returns nil when SSM_PARAM_PREFIX is unset.
func newParamStore(cfg *Config) (*paramstore.Client, error) {
	if cfg.SSMParamPrefix == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return paramstore.New(ssm.NewFromConfig(awsCfg), cfg.SSMParamPrefix)
}

// ResolveSecrets fills secrets left empty in the environment from the
// parameter store. Missing parameters are logged and left empty.
func ResolveSecrets(cfg *Config, params *paramstore.Client, logger *slog.Logger) {
	if params == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := paramstore.Resolve(ctx, params, map[string]*string{
		"asr-api-key":       &cfg.ASRKey,
		"tts-api-key":       &cfg.TTSKey,
		"gemini-api-key":    &cfg.GeminiAPIKey,
		"llm-client-secret": &cfg.LLMClientSecret,
		"database-dsn":      &cfg.DatabaseDSN,
		"redis-password":    &cfg.RedisPassword,
	})
	if err != nil {
		logger.Warn("some secrets were not resolved from parameter store", "prefix", cfg.SSMParamPrefix, "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
