package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ngnhng/durablereplay/examples/scenarios"
	"github.com/ngnhng/durablereplay/examples/scenarios/order"
	_ "github.com/ngnhng/durablereplay/examples/scenarios/periodic"
	"github.com/ngnhng/durablereplay/internal/config"
	"github.com/ngnhng/durablereplay/sdk/client"
	sdkconfig "github.com/ngnhng/durablereplay/sdk/config"
	"github.com/ngnhng/durablereplay/sdk/worker"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	sdk := sdkconfig.Default()
	sdk.Client.ResultPollInterval = 10 * time.Millisecond
	return &config.Config{
		Service: "test",
		Version: "v0",
		Mode:    config.ModeDebug,
		Store:   config.StoreConfig{Backend: config.StoreMemory},
		Queue:   config.QueueConfig{Backend: config.QueueMemory},
		NATS:    sdk.NATS,
		Worker:  sdk.Worker,
		Client:  sdk.Client,
	}
}

func startManager(t *testing.T, cfg *config.Config) (*Manager, func()) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr, err := NewManager(context.Background(), cfg, logger)
	require.NoError(t, err)
	require.NoError(t, mgr.Register(scenarios.All()...))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	return mgr, func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("manager did not stop")
		}
	}
}

func TestManager_RunsExamples(t *testing.T) {
	cfg := testConfig(t)
	mgr, stop := startManager(t, cfg)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	for _, name := range []string{"order", "periodic"} {
		ex, ok := scenarios.Get(name)
		require.True(t, ok, name)
		require.NoError(t, ex.RunClient(ctx, mgr.Client(), cfg.Worker.TaskList), name)
	}
}

func TestManager_ExportAndReplay(t *testing.T) {
	cfg := testConfig(t)
	mgr, stop := startManager(t, cfg)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	req := order.Request{OrderID: "order-replay", CustomerID: "alice", ProductID: "p-1", Quantity: 1, Amount: 10}
	run, err := mgr.Client().ExecuteWorkflow(ctx,
		client.StartWorkflowOptions{ID: req.OrderID, TaskList: cfg.Worker.TaskList}, order.OrderWorkflow, req)
	require.NoError(t, err)
	require.NoError(t, mgr.Client().SignalWorkflow(ctx, req.OrderID, "", order.ShippedSignal, "track-1"))

	var result order.Result
	require.NoError(t, run.Get(ctx, &result))
	require.Equal(t, "shipped", result.Status)
	require.Equal(t, "track-1", result.TrackingID)

	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, mgr.ExportHistoryFile(ctx, path, req.OrderID, ""))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Size())

	require.NoError(t, ReplayFile(path, worker.ReplayerOptions{Codec: mgr.Codec()}, scenarios.All()...))
	require.NoError(t, mgr.ReplayExecution(ctx, req.OrderID, "", scenarios.All()...))
}

func TestManager_UnknownCodec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Client.Codec = "xml"
	_, err := NewManager(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "unknown codec")
}

func TestOptions_Apply(t *testing.T) {
	cfg := testConfig(t)
	Options{NATSHost: "nats.svc", StoreBackend: config.StorePebble, TaskList: "orders", HTTPAddr: ":8080"}.apply(cfg)
	require.Equal(t, "nats://nats.svc:4222", cfg.NATS.URL)
	require.Equal(t, config.StorePebble, cfg.Store.Backend)
	require.Equal(t, "orders", cfg.Worker.TaskList)
	require.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestManager_ReadinessChecks(t *testing.T) {
	mgr, err := NewManager(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	defer mgr.Shutdown()

	checks := mgr.readinessChecks()
	require.Len(t, checks, 1)
	require.Equal(t, "store", checks[0].Name)
	require.NoError(t, checks[0].Run())
}
