package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("LLM_TIMEOUT", "")
	t.Setenv("ABANDON_AFTER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Fatalf("expected anthropic default provider, got %s", cfg.LLMProvider)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Fatalf("expected 30s llm timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.AbandonAfter != 24*time.Hour {
		t.Fatalf("expected 24h abandonment window, got %s", cfg.AbandonAfter)
	}
	if cfg.HistoryLimit != 10 {
		t.Fatalf("expected history limit 10, got %d", cfg.HistoryLimit)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", " Gemini ")
	t.Setenv("QUEUE_BACKEND", "NATS")
	t.Setenv("WORKER_COUNT", "6")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("LLM_TIMEOUT", "12s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.LLMProvider != "gemini" {
		t.Fatalf("expected normalized provider, got %q", cfg.LLMProvider)
	}
	if cfg.QueueBackend != "nats" {
		t.Fatalf("expected nats backend, got %q", cfg.QueueBackend)
	}
	if cfg.WorkerCount != 6 || !cfg.UseMemoryQueue {
		t.Fatalf("unexpected worker settings %d %v", cfg.WorkerCount, cfg.UseMemoryQueue)
	}
	if cfg.LLMTimeout != 12*time.Second {
		t.Fatalf("expected 12s timeout, got %s", cfg.LLMTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.CORSAllowedOrigins)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "lots")
	t.Setenv("REDIS_TLS", "maybe")
	t.Setenv("ABANDON_AFTER", "soon")
	cfg := Load()
	if cfg.WorkerCount != 2 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.RedisTLS {
		t.Fatal("expected redis tls default false")
	}
	if cfg.AbandonAfter != 24*time.Hour {
		t.Fatalf("expected default abandonment window, got %s", cfg.AbandonAfter)
	}
}
