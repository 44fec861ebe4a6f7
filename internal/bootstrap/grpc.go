package bootstrap

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/eleven-am/voice-callcenter/internal/health"
	"go.uber.org/fx"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthWatchInterval = 15 * time.Second
	callServiceName     = "callcenter.Voice"
)

func NewGRPCServer() *grpc.Server {
	return grpc.NewServer()
}

func NewGRPCHealthServer(server *grpc.Server) *grpchealth.Server {
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	return hs
}

// WatchReadiness mirrors the readiness check into the gRPC health service so
// load balancers can probe either protocol.
func WatchReadiness(lc fx.Lifecycle, hs *grpchealth.Server, h *health.Handler, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				ticker := time.NewTicker(healthWatchInterval)
				defer ticker.Stop()
				for {
					updateServingStatus(ctx, hs, h, logger)
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			hs.Shutdown()
			return nil
		},
	})
}

func updateServingStatus(ctx context.Context, hs *grpchealth.Server, h *health.Handler, logger *slog.Logger) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, _ := h.Check(checkCtx)
	serving := healthpb.HealthCheckResponse_SERVING
	if status == health.StatusUnhealthy {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		logger.Warn("readiness check failed, reporting NOT_SERVING")
	}
	hs.SetServingStatus("", serving)
	hs.SetServingStatus(callServiceName, serving)
}

func StartGRPCServer(lc fx.Lifecycle, server *grpc.Server, cfg *Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				return err
			}
			go func() {
				logger.Info("gRPC server starting", "addr", cfg.GRPCAddr)
				if err := server.Serve(lis); err != nil {
					logger.Error("gRPC server error", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			server.GracefulStop()
			return nil
		},
	})
}

var GRPCModule = fx.Options(
	fx.Provide(NewGRPCServer, NewGRPCHealthServer),
	fx.Invoke(StartGRPCServer),
	fx.Invoke(WatchReadiness),
)
