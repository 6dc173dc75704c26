package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

type fakeSweeper struct {
	at     time.Time
	closed int
	err    error
}

func (f *fakeSweeper) Sweep(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return f.closed, f.err
}

func TestHandleUsesEventTime(t *testing.T) {
	sw := &fakeSweeper{closed: 3}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &handler{sweeper: sw, logger: logging.New("error"), now: func() time.Time { return fixed.Add(time.Hour) }}

	res, err := h.handle(context.Background(), events.CloudWatchEvent{Time: fixed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Abandoned != 3 {
		t.Fatalf("expected 3 abandoned, got %d", res.Abandoned)
	}
	if !sw.at.Equal(fixed) {
		t.Fatalf("expected sweep at event time %v, got %v", fixed, sw.at)
	}
}

func TestHandleFallsBackToClock(t *testing.T) {
	sw := &fakeSweeper{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &handler{sweeper: sw, logger: logging.New("error"), now: func() time.Time { return fixed }}

	res, err := h.handle(context.Background(), events.CloudWatchEvent{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sw.at.Equal(fixed) || res.RanAt != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected sweep time %v / %q", sw.at, res.RanAt)
	}
}

func TestHandleReturnsSweepError(t *testing.T) {
	sw := &fakeSweeper{closed: 1, err: errors.New("db down")}
	h := &handler{sweeper: sw, logger: logging.New("error"), now: time.Now}

	res, err := h.handle(context.Background(), events.CloudWatchEvent{})
	if err == nil {
		t.Fatalf("expected error so the invocation is retried")
	}
	if res.Abandoned != 1 {
		t.Fatalf("expected partial count, got %d", res.Abandoned)
	}
}
