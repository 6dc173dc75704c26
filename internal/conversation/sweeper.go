package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/whatsapp-commerce/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

const (
	DefaultAbandonAfter = 24 * time.Hour
	sweepBatch          = 100
	maxSweepBatches     = 50
)

type staleStore interface {
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
}

// TranscriptArchiver keeps a copy of a closed conversation.
type TranscriptArchiver interface {
	Archive(ctx context.Context, conv *Conversation) error
}

// Sweeper closes conversations that went quiet before reaching a terminal
// state.
type Sweeper struct {
	store    staleStore
	machine  *Machine
	locker   Locker
	archiver TranscriptArchiver
	metrics  *metrics.CommerceMetrics
	logger   *logging.Logger
	after    time.Duration
}

type SweeperOption func(*Sweeper)

func WithArchiver(a TranscriptArchiver) SweeperOption {
	return func(s *Sweeper) { s.archiver = a }
}

func WithSweepMetrics(m *metrics.CommerceMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

// WithAbandonAfter sets the idle period; non-positive values are ignored.
func WithAbandonAfter(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.after = d
		}
	}
}

func NewSweeper(store staleStore, machine *Machine, locker Locker, logger *logging.Logger, opts ...SweeperOption) *Sweeper {
	if store == nil || machine == nil {
		panic("conversation: sweeper requires store and machine")
	}
	if locker == nil {
		locker = NewKeyedMutex()
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Sweeper{
		store:   store,
		machine: machine,
		locker:  locker,
		logger:  logger,
		after:   DefaultAbandonAfter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep abandons every conversation idle since before now-after and returns
// how many were closed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.after)
	closed := 0
	for batch := 0; batch < maxSweepBatches; batch++ {
		stale, err := s.store.FindStale(ctx, cutoff, sweepBatch)
		if err != nil {
			return closed, fmt.Errorf("conversation: sweep: %w", err)
		}
		progressed := 0
		for _, conv := range stale {
			if err := ctx.Err(); err != nil {
				return closed, err
			}
			ok, err := s.abandon(ctx, conv)
			if err != nil {
				s.logger.Warn("failed to abandon conversation", "error", err, "conversation_id", conv.ID)
				continue
			}
			if ok {
				progressed++
			}
		}
		closed += progressed
		if len(stale) < sweepBatch || progressed == 0 {
			break
		}
	}
	s.metrics.ObserveAbandoned(closed)
	if closed > 0 {
		s.logger.Info("abandoned idle conversations", "count", closed, "cutoff", cutoff)
	}
	return closed, nil
}

func (s *Sweeper) abandon(ctx context.Context, conv *Conversation) (bool, error) {
	unlock, err := s.locker.Lock(ctx, LockKey(conv.TenantID, conv.CustomerAddress))
	if err != nil {
		return false, err
	}
	defer unlock()

	if res := s.machine.Abandon(conv); !res.Success {
		return false, nil
	}
	if err := s.store.Save(ctx, conv); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			// the customer wrote in after the scan
			return false, nil
		}
		return false, err
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, conv); err != nil {
			s.logger.Warn("failed to archive transcript", "error", err, "conversation_id", conv.ID)
		}
	}
	return true, nil
}
