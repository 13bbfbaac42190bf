package e2e

import (
	"chat-relay/client"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const password = "E2e!Passw0rd-long"

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayURL == "" {
		s.T().Skip("RELAY_URL not set")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// GrpcConn initializes a gRPC connection with logging, colors, and JSON debugging
func (s *BaseRelaySuite) GrpcConn(t *testing.T, name string, addr string) *grpc.ClientConn {
	s.header(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err != nil {
					fmt.Fprintln(&logBuilder, "ERROR:", err)
				} else {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}

// Join signs up a fresh account and runs a client for it until the step ends.
func (s *BaseRelaySuite) Join(name string, fn func(c *client.Client)) {
	t := s.T()
	s.header(t, "Joining as "+name)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rest := client.NewStoreClient(s.Config.RelayURL, nil)
	email := fmt.Sprintf("%s-%s@e2e.local", name, uuid.NewString()[:8])
	s.Require().NoError(rest.Signup(ctx, email, name, password))
	token, username, err := rest.Login(ctx, email, password)
	s.Require().NoError(err)

	c := client.New(logs.GetLoggerFromLevel(slog.LevelDebug), client.Config{
		BaseURL:          s.Config.RelayURL,
		SocketURL:        "ws" + strings.TrimPrefix(s.Config.RelayURL, "http") + "/api/socket",
		Token:            token,
		Author:           username,
		HistoryLimit:     50,
		HandshakeTimeout: 5 * time.Second,
		PersistTimeout:   5 * time.Second,
	}, rest)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	s.Require().Eventually(func() bool {
		_, state, err := c.Reconciler().Snapshot(ctx)
		return err == nil && state == client.Live
	}, 10*time.Second, 50*time.Millisecond)
	fn(c)
}
