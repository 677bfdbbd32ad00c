package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/peakwatch/cmd/peakwatch/router"
	"github.com/HatiCode/peakwatch/pkg/adapters"
	"github.com/HatiCode/peakwatch/pkg/client"
	"github.com/HatiCode/peakwatch/pkg/records"
	"github.com/HatiCode/peakwatch/pkg/storage"
)

// startSteamMock serves a fixed GetNumberOfCurrentPlayers response from nginx.
func startSteamMock(t *testing.T, ctx context.Context, players int64) string {
	t.Helper()

	body := fmt.Sprintf(`{"response":{"player_count":%d,"result":1}}`, players)
	nginxConf := `
events {
    worker_connections 1024;
}
http {
    server {
        listen 80;
        location /ISteamUserStats/GetNumberOfCurrentPlayers/v1/ {
            default_type application/json;
            return 200 '` + body + `';
        }
    }
}
`

	req := testcontainers.ContainerRequest{
		Image:        "nginx:alpine",
		ExposedPorts: []string{"80/tcp"},
		Files: []testcontainers.ContainerFile{
			{
				ContainerFilePath: "/etc/nginx/nginx.conf",
				FileMode:          0o644,
				Reader:            strings.NewReader(nginxConf),
			},
		},
		WaitingFor: wait.ForHTTP("/ISteamUserStats/GetNumberOfCurrentPlayers/v1/").
			WithPort("80/tcp").
			WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Steam mock container: %v", err)
	}
	t.Cleanup(func() { testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Steam mock host: %v", err)
	}
	port, err := container.MappedPort(ctx, "80")
	if err != nil {
		t.Fatalf("Failed to get Steam mock port: %v", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) *redis.Options {
	t.Helper()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() { testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		t.Fatalf("Failed to parse redis URL: %v", err)
	}
	return opts
}

// TestTrackerE2E runs fetch -> observe -> persist -> serve against real
// containers, then restarts from the same Redis and checks nothing was lost.
func TestTrackerE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	steamURL := startSteamMock(t, ctx, 4321)
	redisOpts := startRedis(t, ctx)

	source := &adapters.SteamAdapter{BaseURL: steamURL, AppID: adapters.DefaultSteamAppID}

	// 1. First process lifetime.
	backend := storage.NewRedisBackendWithOptions(redisOpts, "peakwatch:e2e")
	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("Redis ping failed: %v", err)
	}

	store := records.New(backend, records.WithLogger(logger))
	if _, err := records.Bootstrap(ctx, backend, store, logger); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	value, err := source.Fetch(ctx)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if value != 4321 {
		t.Fatalf("Fetch = %d, want 4321", value)
	}

	res, err := store.Observe(ctx, value)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if !res.IsNewRecord {
		t.Fatal("first observation should be a new record")
	}

	// A second poll of the same value is not a record.
	res, err = store.Observe(ctx, value)
	if err != nil {
		t.Fatalf("Observe failed: %v", err)
	}
	if res.IsNewRecord {
		t.Error("repeated value should not be a new record")
	}

	// 2. Serve the state and read it back with the client.
	srv := httptest.NewServer(router.SetupRoutes(store, router.Options{Metric: "player count", Capacity: store.Capacity()}, logger))
	defer srv.Close()

	got, err := client.NewTrackerClient(srv.URL).GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.State.CurrentHigh != 4321 || len(got.State.History) != 1 {
		t.Errorf("GetState = %+v, want current high 4321 with one record", got.State)
	}
	backend.Close()

	// 3. Restart: a fresh store bootstrapped from the same Redis key.
	restarted := storage.NewRedisBackendWithOptions(redisOpts, "peakwatch:e2e")
	defer restarted.Close()

	store2 := records.New(restarted, records.WithLogger(logger))
	state, err := records.Bootstrap(ctx, restarted, store2, logger)
	if err != nil {
		t.Fatalf("Bootstrap after restart failed: %v", err)
	}
	if state.CurrentHigh != 4321 {
		t.Errorf("CurrentHigh after restart = %d, want 4321", state.CurrentHigh)
	}
	if len(state.History) != 1 || state.History[0].Value != 4321 {
		t.Errorf("History after restart = %+v", state.History)
	}

	t.Log("✓ State survived restart")
}

// TestGRPCHealthE2E checks the health service transitions the tracker relies
// on for readiness.
func TestGRPCHealthE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	hc := grpc_health_v1.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status before bootstrap = %v, want NOT_SERVING", resp.Status)
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	resp, err = hc.Check(ctx, &grpc_health_v1.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status after bootstrap = %v, want SERVING", resp.Status)
	}
}
