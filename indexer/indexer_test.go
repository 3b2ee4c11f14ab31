package indexer

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"gorm.io/gorm"

	"dinechain/core/events"
	"dinechain/crypto"
)

func setupIndexer(t *testing.T, depth int) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	idx, err := New(db, Options{QueueDepth: depth})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func addr(b byte) [20]byte {
	var a [20]byte
	a[19] = b
	return a
}

func payment(restaurant byte, amount int64, ts uint64) events.PaymentProcessed {
	return events.PaymentProcessed{
		Payer:          addr(0x01),
		Restaurant:     addr(restaurant),
		OriginalAmount: big.NewInt(amount),
		AdjustedAmount: big.NewInt(amount - 1),
		CustomRatio:    big.NewInt(999_999_999_999_500_000),
		Timestamp:      ts,
	}
}

func TestIndexerRecordsPayments(t *testing.T) {
	idx := setupIndexer(t, 16)
	idx.Emit(events.RestaurantRegistered{Restaurant: addr(0x11), PlaceID: "place-a", Sequence: 1})
	idx.Emit(payment(0x11, 1_000_000, 100))
	idx.Emit(payment(0x11, 2_000_000, 200))
	idx.Emit(payment(0x12, 5, 150))
	idx.Emit(events.RestaurantRemoved{Restaurant: addr(0x11), PlaceID: "place-a", Caller: addr(0xaa)})
	idx.Flush()

	ctx := context.Background()
	restaurantRaw := addr(0x11)
	restaurant := crypto.MustNewAddress(crypto.DinePrefix, restaurantRaw[:]).String()
	rows, total, err := idx.ListPayments(ctx, restaurant, 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, rows, 2)
	require.Equal(t, int64(200), rows[0].Timestamp)
	require.Equal(t, "2000000", rows[0].OriginalAmount)
	require.Equal(t, "1999999", rows[0].AdjustedAmount)
	require.Equal(t, "999999999999500000", rows[0].CustomRatio)

	page, total, err := idx.ListPayments(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	require.Equal(t, int64(150), page[0].Timestamp)

	hexRows, _, err := idx.ListPayments(ctx, "0x0000000000000000000000000000000000000011", 10, 0)
	require.NoError(t, err)
	require.Len(t, hexRows, 2)

	history, err := idx.Registrations(ctx, restaurant)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, ActionRegistered, history[0].Action)
	require.Equal(t, uint64(1), history[0].Sequence)
	require.Equal(t, ActionRemoved, history[1].Action)
	callerRaw := addr(0xaa)
	require.Equal(t, crypto.MustNewAddress(crypto.DinePrefix, callerRaw[:]).String(), history[1].Caller)

	_, _, err = idx.ListPayments(ctx, "not-an-address", 10, 0)
	require.Error(t, err)
}

func TestIndexerIgnoresOtherEventsAfterFlush(t *testing.T) {
	idx := setupIndexer(t, 4)
	idx.Emit(events.TokenTransfer{From: addr(1), To: addr(2), Amount: big.NewInt(1)})
	idx.Flush()
	idx.Emit(payment(0x11, 10, 1))

	_, total, err := idx.ListPayments(context.Background(), "", 10, 0)
	require.NoError(t, err)
	require.Zero(t, total)
	require.Zero(t, idx.Dropped())
}

func TestExportPaymentsParquet(t *testing.T) {
	idx := setupIndexer(t, 16)
	for i := 0; i < 5; i++ {
		idx.Emit(payment(0x11, int64(100+i), uint64(10+i)))
	}
	idx.Flush()

	path := filepath.Join(t.TempDir(), "exports", "payments.parquet")
	n, err := idx.ExportPayments(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(paymentRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(5), pr.GetNumRows())

	rows := make([]paymentRow, 5)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(10), rows[0].Timestamp)
	require.Equal(t, "100", rows[0].OriginalAmount)
	require.Equal(t, int64(14), rows[4].Timestamp)
}
