package events

import (
	"context"
	"testing"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestProcessedStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := NewProcessedStore(mock)

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("paystack", "WA-1").WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(1))
	processed, err := store.AlreadyProcessed(context.Background(), "paystack", "WA-1")
	if err != nil || !processed {
		t.Fatalf("expected existing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectQuery("SELECT 1 FROM processed_events").WithArgs("paystack", "WA-miss").WillReturnError(pgx.ErrNoRows)
	processed, err = store.AlreadyProcessed(context.Background(), "paystack", "WA-miss")
	if err != nil || processed {
		t.Fatalf("expected missing row, got processed=%v err=%v", processed, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("paystack", "WA-new").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ok, err := store.MarkProcessed(context.Background(), "paystack", "WA-new")
	if err != nil || !ok {
		t.Fatalf("expected mark processed success, got %v %v", ok, err)
	}

	mock.ExpectExec("INSERT INTO processed_events").WithArgs("paystack", "WA-new").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	ok, err = store.MarkProcessed(context.Background(), "paystack", "WA-new")
	if err != nil || ok {
		t.Fatalf("expected duplicate mark to report false, got %v %v", ok, err)
	}

	mock.ExpectExec("DELETE FROM processed_events").WithArgs("paystack", "WA-new").WillReturnResult(pgxmock.NewResult("DELETE", 1))
	if err := store.Forget(context.Background(), "paystack", "WA-new"); err != nil {
		t.Fatalf("forget: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemoryTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryTracker()

	if ok, _ := tracker.MarkProcessed(ctx, "paystack", "ref"); !ok {
		t.Fatalf("first mark should succeed")
	}
	if ok, _ := tracker.MarkProcessed(ctx, "paystack", "ref"); ok {
		t.Fatalf("second mark should report duplicate")
	}
	if seen, _ := tracker.AlreadyProcessed(ctx, "other", "ref"); seen {
		t.Fatalf("providers must be tracked separately")
	}
	_ = tracker.Forget(ctx, "paystack", "ref")
	if seen, _ := tracker.AlreadyProcessed(ctx, "paystack", "ref"); seen {
		t.Fatalf("forgotten event should be accepted again")
	}
}
