package bootstrap

import (
	"log/slog"
	"os"
	"time"

	_ "github.com/eleven-am/voice-callcenter/docs"
	"github.com/eleven-am/voice-callcenter/internal/callrecord"
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/gateway"
	"github.com/eleven-am/voice-callcenter/internal/stats"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	CallHandler   *gateway.CallHandler
	MediaHandler  *gateway.MediaHandler
	EventsHandler *gateway.EventStreamHandler
	Config        *Config
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/api/v1")
	api.Use(gateway.RateLimiter(gateway.RateLimiterConfig{
		RequestsPerSecond: params.Config.RateLimitRPS,
		Burst:             params.Config.RateLimitBurst,
		CleanupInterval:   5 * time.Minute,
		Skip:              gateway.SkipAudioRoutes,
	}))

	params.CallHandler.RegisterRoutes(api)
	params.MediaHandler.RegisterRoutes(api)
	params.EventsHandler.RegisterRoutes(api)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandlerV3())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideCallHandler(registry *callsession.Registry, records *callrecord.Store, statsStore *stats.Store, logger *slog.Logger) *gateway.CallHandler {
	return gateway.NewCallHandler(registry, records, statsStore, logger.With("handler", "calls"))
}

func ProvideMediaHandler(registry *callsession.Registry, logger *slog.Logger) *gateway.MediaHandler {
	return gateway.NewMediaHandler(registry, logger.With("handler", "media"))
}

func ProvideEventStreamHandler(bus *events.Bus, publisher *events.RedisPublisher, logger *slog.Logger) *gateway.EventStreamHandler {
	return gateway.NewEventStreamHandler(bus, publisher, logger.With("handler", "events"))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideCallHandler,
		ProvideMediaHandler,
		ProvideEventStreamHandler,
	),
	fx.Invoke(RegisterRoutes),
)
