package workers

import (
	"context"
	"errors"
	"log/slog"
	"net"

	grpclog "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported by the relay.
const ServiceName = "chat-relay"

// GRPCHealthWorker exposes the standard gRPC health service for operators.
type GRPCHealthWorker struct {
	log    *slog.Logger
	listen func() (net.Listener, error)
	health *health.Server
}

func NewGRPCHealthWorker(log *slog.Logger, address string) *GRPCHealthWorker {
	return NewGRPCHealthWorkerWithListener(log, func() (net.Listener, error) {
		return net.Listen("tcp", address)
	})
}

// NewGRPCHealthWorkerWithListener is used when the listener is not a TCP port.
func NewGRPCHealthWorkerWithListener(log *slog.Logger, listen func() (net.Listener, error)) *GRPCHealthWorker {
	return &GRPCHealthWorker{log: log, listen: listen, health: health.NewServer()}
}

func (w *GRPCHealthWorker) Run(ctx context.Context) error {
	listener, err := w.listen()
	if err != nil {
		return err
	}

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpclog.UnaryLoggingInterceptor(w.log)))
	healthpb.RegisterHealthServer(s, w.health)
	w.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	w.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		for serviceName := range s.GetServiceInfo() {
			w.log.Debug("gRPC exposed services", "name", serviceName)
		}
		errChan <- s.Serve(listener)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.health.Shutdown()
		s.GracefulStop()
		<-errChan
		return nil
	}
}
