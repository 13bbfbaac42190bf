package workers

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestGRPCHealthWorker_Serving(t *testing.T) {
	req := require.New(t)
	lis := bufconn.Listen(1024 * 1024)
	worker := NewGRPCHealthWorkerWithListener(slog.Default(), func() (net.Listener, error) {
		return lis, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName}, grpc.WaitForReady(true))
	req.NoError(err)
	req.Equal(healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	// When the context is canceled the worker stops cleanly
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("health worker did not stop")
	}
}
