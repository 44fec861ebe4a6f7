package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/dialogue"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/paramstore"
	"github.com/eleven-am/voice-callcenter/internal/shared"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/eleven-am/voice-callcenter/internal/synthesis"
	"github.com/eleven-am/voice-callcenter/internal/telemetry"
	"github.com/eleven-am/voice-callcenter/internal/transcription"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const (
	subscriberBuffer = 512
	llmKeyCacheTTL   = 5 * time.Minute
)

func ProvideTranscriber(cfg *Config, logger *slog.Logger) *transcription.WSClient {
	return transcription.NewWSClient(transcription.Config{
		URL:              cfg.ASRURL,
		APIKey:           cfg.ASRKey,
		Model:            cfg.ASRModel,
		HandshakeTimeout: cfg.ConnectTimeout,
		Retry:            shared.DefaultRetryPolicy(),
	}, logger)
}

func ProvideSynthesisClient(cfg *Config, logger *slog.Logger) *synthesis.WSClient {
	return synthesis.NewWSClient(synthesis.Config{
		URL:              cfg.TTSURL,
		APIKey:           cfg.TTSKey,
		Voice:            cfg.Voice,
		Model:            cfg.TTSModel,
		HandshakeTimeout: cfg.ConnectTimeout,
		ReadTimeout:      cfg.TTSChunkTimeout,
		Retry:            shared.DefaultRetryPolicy(),
	}, logger)
}

func ProvideSynthesizer(client *synthesis.WSClient, logger *slog.Logger) synthesis.Synthesizer {
	return synthesis.NewRetrying(client, shared.DefaultRetryPolicy(), logger)
}

func ProvideGenerator(cfg *Config, params *paramstore.Client, logger *slog.Logger) (dialogue.Generator, error) {
	switch cfg.GeneratorBackend {
	case GeneratorEcho:
		logger.Warn("using echo generator, replies repeat the caller")
		return dialogue.EchoGenerator{}, nil
	case GeneratorGemini:
		return dialogue.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.LLMModel)
	case GeneratorHTTP:
		var opts []dialogue.HTTPOption
		if cfg.LLMKeyParam != "" && params != nil {
			opts = append(opts, dialogue.WithKeySource(paramstore.CachedValue(params, cfg.LLMKeyParam, llmKeyCacheTTL)))
		}
		return dialogue.NewHTTPGenerator(dialogue.HTTPConfig{
			BaseURL:      cfg.LLMBaseURL,
			Model:        cfg.LLMModel,
			APIKey:       cfg.LLMAPIKey,
			ClientID:     cfg.LLMClientID,
			ClientSecret: cfg.LLMClientSecret,
			TokenURL:     cfg.LLMTokenURL,
		}, opts...)
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.GeneratorBackend)
	}
}

func ProvideCallConfig(cfg *Config) callsession.Config {
	c := callsession.DefaultConfig()
	c.GenerationTimeout = cfg.GenerationTimeout
	c.ConnectTimeout = cfg.ConnectTimeout
	c.ChunkTimeout = cfg.TTSChunkTimeout
	if cfg.FallbackReply != "" {
		c.FallbackReply = cfg.FallbackReply
	}
	c.EnergyThreshold = cfg.EnergyThreshold
	c.MaxBuffered = cfg.MaxBufferedAudio
	c.BargeIn = callsession.BargeInPolicy{
		MinSpeech:       cfg.BargeInMinSpeech,
		MinPartialChars: cfg.BargeInMinChars,
	}
	c.Voice = cfg.Voice
	c.Language = cfg.Language
	c.EndedRetention = cfg.EndedCallRetention
	return c
}

func ProvideEventBus(logger *slog.Logger) *events.Bus {
	return events.NewBus(logger)
}

func ProvideRedisPublisher(client *redis.Client, logger *slog.Logger) *events.RedisPublisher {
	return events.NewRedisPublisher(client, logger)
}

type RegistryParams struct {
	fx.In

	Config      callsession.Config
	Transcriber *transcription.WSClient
	Synthesizer synthesis.Synthesizer
	Generator   dialogue.Generator
	Bus         *events.Bus
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

func ProvideRegistry(p RegistryParams) *callsession.Registry {
	return callsession.NewRegistry(p.Config, callsession.Dependencies{
		Transcriber: p.Transcriber,
		Synthesizer: p.Synthesizer,
		Generator:   p.Generator,
		Events:      p.Bus,
		Observer:    p.Metrics,
	}, p.Logger)
}

type SubscriberParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Bus       *events.Bus
	Registry  *callsession.Registry
	Publisher *events.RedisPublisher
	Records   *callrecord.Store
	Stats     *stats.Store
	Logger    *slog.Logger
}

// AttachSubscribers wires the event sinks. On stop, live calls are ended
// first so their final events still reach the sinks before the bus closes.
func AttachSubscribers(p SubscriberParams) {
	ctx := context.Background()
	p.Bus.Attach(ctx, "log", subscriberBuffer, events.NewLogSink(p.Logger))
	p.Bus.Attach(ctx, "redis", subscriberBuffer, p.Publisher)
	p.Bus.Attach(ctx, "call_records", subscriberBuffer, callrecord.NewRecorder(p.Records, p.Logger))
	p.Bus.Attach(ctx, "stats", subscriberBuffer, stats.NewRecorder(p.Stats, p.Logger))

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			err := p.Registry.Close(ctx)
			p.Bus.Close()
			return err
		},
	})
}

func WarmSynthesizer(lc fx.Lifecycle, client *synthesis.WSClient, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := client.Warm(ctx); err != nil {
					logger.Warn("tts warm-up failed", "error", err)
				}
			}()
			return nil
		},
	})
}

var PipelineModule = fx.Options(
	fx.Provide(
		ProvideTranscriber,
		ProvideSynthesisClient,
		ProvideSynthesizer,
		ProvideGenerator,
		ProvideCallConfig,
		ProvideEventBus,
		ProvideRedisPublisher,
		ProvideRegistry,
	),
	fx.Invoke(AttachSubscribers),
	fx.Invoke(WarmSynthesizer),
)
