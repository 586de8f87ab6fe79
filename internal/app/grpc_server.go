package app

import (
	"errors"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	grpcStopTimeout = 5 * time.Second
	// storefrontServiceName — имя, под которым балансировщики спрашивают grpc health.
	storefrontServiceName = "storefront.v1.Storefront"
)

// newGRPCServer поднимает служебный gRPC: health-протокол и reflection
// с prometheus-интерцепторами.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(storefrontServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	return server, healthServer
}

// stopGRPC переводит health в NOT_SERVING и ждёт GracefulStop не дольше таймаута.
func stopGRPC(server *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	if server == nil {
		return
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		server.Stop()
	}
}
