package main

import (
	"context"
	"log/slog"
	"net"

	"github.com/md-rashed-zaman/trainingplanner/libs/auth"
	"github.com/md-rashed-zaman/trainingplanner/libs/grpcx"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/availability"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/grpcserver"
	"google.golang.org/grpc/health/grpc_health_v1"
)

func startGrpcServer(ctx context.Context, logger *slog.Logger, port string, engine *availability.Engine, d grpcserver.Deduplicator, verifier *auth.Verifier) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}

	srv := grpcx.NewServer(logger)
	health := grpcserver.Register(srv, engine, d, verifier, logger)

	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		health.SetServingStatus(grpcserver.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		srv.GracefulStop()
	}()

	return nil
}
