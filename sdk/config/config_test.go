package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("NATS.URL = %q, want nats://localhost:4222", cfg.NATS.URL)
	}
	if cfg.Worker.TaskList != DefaultTaskList {
		t.Errorf("Worker.TaskList = %q, want %q", cfg.Worker.TaskList, DefaultTaskList)
	}
	if cfg.NATS.NATSAckWait() != DefaultAckWait {
		t.Errorf("NATSAckWait() = %v, want %v", cfg.NATS.NATSAckWait(), DefaultAckWait)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NATS_HOST", "nats.internal")
	t.Setenv("NATS_PORT", "4333")
	t.Setenv("NATS_ACK_WAIT", "45s")
	t.Setenv("WORKER_TASK_LIST", "orders")
	t.Setenv("WORKER_MAX_CONCURRENT_ACTIVITIES", "8")
	t.Setenv("CLIENT_CODEC", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NATS.Endpoint() != "nats://nats.internal:4333" {
		t.Errorf("Endpoint() = %q", cfg.NATS.Endpoint())
	}
	if cfg.NATS.AckWait != 45*time.Second {
		t.Errorf("AckWait = %v, want 45s", cfg.NATS.AckWait)
	}
	if cfg.Worker.TaskList != "orders" || cfg.Worker.MaxConcurrentActivities != 8 {
		t.Errorf("Worker = %+v", cfg.Worker)
	}
	if cfg.Client.Codec != "json" {
		t.Errorf("Client.Codec = %q, want json", cfg.Client.Codec)
	}
}

func TestLoadExplicitURL(t *testing.T) {
	t.Setenv("NATS_URL", "nats://a:1,nats://b:2")
	t.Setenv("NATS_HOST", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NATS.URL != "nats://a:1,nats://b:2" {
		t.Errorf("URL = %q", cfg.NATS.URL)
	}
}
