package bootstrap

import (
	"github.com/eleven-am/voice-callcenter/internal/callsession"
	"github.com/eleven-am/voice-callcenter/internal/events"
	"github.com/eleven-am/voice-callcenter/internal/telemetry"
	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

func RegisterMetrics(e *echo.Echo, m *telemetry.Metrics, bus *events.Bus, registry *callsession.Registry) {
	m.WatchBus(bus)
	m.WatchUnknownAudio(registry.UnknownDrops)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

var TelemetryModule = fx.Options(
	fx.Provide(telemetry.New),
	fx.Invoke(RegisterMetrics),
)
