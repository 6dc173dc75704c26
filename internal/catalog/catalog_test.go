package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/whatsapp-commerce/pkg/logging"
)

func product(id, name string, price int64) Product {
	return Product{ID: id, TenantID: "t1", Name: name, Price: decimal.NewFromInt(price), Active: true}
}

func TestMatchByName(t *testing.T) {
	products := []Product{
		product("1", "Ankara Print Dress", 25000),
		product("2", "Ankara Print Dress - Long", 30000),
		product("3", "Dress", 10000),
		product("4", "Beaded Bag", 5000),
	}

	tests := []struct {
		name   string
		text   string
		wantID string
		found  bool
	}{
		{"exact ignores case", "ankara print DRESS", "1", true},
		{"exact beats containment", "Dress", "3", true},
		{"shortest containing name wins", "ankara", "1", true},
		{"text contains product name", "I want the beaded bag please", "4", true},
		{"no match", "sneakers", "", false},
		{"blank", "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchByName(products, tt.text)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestMatchByNameTieBreaksAlphabetically(t *testing.T) {
	products := []Product{product("b", "Red Cap", 1), product("a", "Red Bag", 1)}
	got, ok := MatchByName(products, "red")
	require.True(t, ok)
	assert.Equal(t, "Red Bag", got.Name)
}

func TestSuggestionsLimit(t *testing.T) {
	var products []Product
	for _, n := range []string{"a", "b", "c", "d", "e", "f"} {
		products = append(products, product(n, n, 1))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, Suggestions(products, 5))
	assert.Empty(t, Suggestions(nil, 5))
}

func TestInStock(t *testing.T) {
	p := product("1", "x", 1)
	assert.True(t, p.InStock(100))
	p.TrackInventory = true
	p.Quantity = 3
	assert.True(t, p.InStock(3))
	assert.False(t, p.InStock(4))
}

func TestRepositoryFindActiveByTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"id", "tenant_id", "name", "description", "price", "track_inventory", "quantity", "is_active"}).
		AddRow("p1", "t1", "Ankara Print Dress", "", "25000.00", true, 4, true).
		AddRow("p2", "t1", "Beaded Bag", "handmade", "4999.50", false, 0, true)
	mock.ExpectQuery("FROM products").WithArgs("t1").WillReturnRows(rows)

	repo := NewRepository(mock)
	got, err := repo.FindActiveByTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "25000.00", got[0].Price.StringFixed(2))
	assert.True(t, got[0].TrackInventory)
	assert.Equal(t, 4, got[0].Quantity)
	assert.Equal(t, "handmade", got[1].Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryFindByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM products WHERE id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).FindByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

type countingLookup struct {
	*MemoryLookup
	calls int
}

func (c *countingLookup) FindActiveByTenant(ctx context.Context, tenantID string) ([]Product, error) {
	c.calls++
	return c.MemoryLookup.FindActiveByTenant(ctx, tenantID)
}

func TestCachedLookupServesFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countingLookup{MemoryLookup: NewMemoryLookup(product("p1", "Dress", 100))}
	cached := NewCachedLookup(inner, client, time.Minute, logging.Default())
	ctx := context.Background()

	first, err := cached.FindActiveByTenant(ctx, "t1")
	require.NoError(t, err)
	second, err := cached.FindActiveByTenant(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, second[0].Price.Equal(decimal.NewFromInt(100)))

	require.NoError(t, cached.Invalidate(ctx, "t1"))
	_, err = cached.FindActiveByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestMemoryLookupFiltersTenantAndInactive(t *testing.T) {
	inactive := product("p2", "Old", 1)
	inactive.Active = false
	other := product("p3", "Other", 1)
	other.TenantID = "t2"
	m := NewMemoryLookup(product("p1", "Zed", 1), product("p4", "Alpha", 1), inactive, other)

	got, err := m.FindActiveByTenant(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Name)

	_, err = m.FindByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
