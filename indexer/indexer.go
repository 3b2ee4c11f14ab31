// Package indexer mirrors committed ledger events into a SQL database so
// payment history can be paged and exported without scanning chain state.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dinechain/core/events"
	"dinechain/crypto"
)

const (
	defaultQueueDepth = 1024
	maxPageSize       = 500
)

// Options tunes the writer queue.
type Options struct {
	QueueDepth int
	Logger     *slog.Logger
}

// Indexer consumes events asynchronously. Emit never blocks the caller; when
// the queue is full the record is dropped and counted.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	queue   chan any
	done    chan struct{}
	stop    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

// Open connects to dsn, migrates the schema and starts the writer. DSNs with a
// postgres:// or postgresql:// scheme use Postgres; anything else is treated
// as a sqlite path.
func Open(dsn string, opts Options) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db, opts)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB, opts Options) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Indexer{
		db:     db,
		logger: logger,
		queue:  make(chan any, depth),
		done:   make(chan struct{}),
	}
	go idx.run()
	return idx, nil
}

// Emit implements events.Emitter.
func (i *Indexer) Emit(e events.Event) {
	if i == nil || i.closed.Load() {
		return
	}
	record := toRecord(e)
	if record == nil {
		return
	}
	defer func() {
		// Close may race with a late Emit; a send on the closed queue is a drop.
		if recover() != nil {
			i.dropped.Add(1)
		}
	}()
	select {
	case i.queue <- record:
	default:
		i.dropped.Add(1)
		i.logger.Warn("indexer queue full, dropping event", slog.String("type", e.EventType()))
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (i *Indexer) Dropped() uint64 { return i.dropped.Load() }

// Flush stops accepting events and waits until every queued record has been
// written. Queries keep working afterwards.
func (i *Indexer) Flush() {
	i.stop.Do(func() {
		i.closed.Store(true)
		close(i.queue)
	})
	<-i.done
}

// Close flushes the queue and releases the database handle.
func (i *Indexer) Close() error {
	i.Flush()
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (i *Indexer) run() {
	defer close(i.done)
	for record := range i.queue {
		if err := i.db.Create(record).Error; err != nil {
			i.logger.Error("indexer write failed", slog.Any("error", err))
		}
	}
}

// ListPayments returns a page of payments ordered newest first. An empty
// restaurant lists every payment. The total ignores paging.
func (i *Indexer) ListPayments(ctx context.Context, restaurant string, limit, offset int) ([]Payment, int64, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	query := i.db.WithContext(ctx).Model(&Payment{})
	if strings.TrimSpace(restaurant) != "" {
		addr, err := normalizeAddress(restaurant)
		if err != nil {
			return nil, 0, err
		}
		query = query.Where("restaurant = ?", addr)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []Payment
	err := query.Order("timestamp DESC").Order("created_at DESC").Limit(limit).Offset(offset).Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Registrations returns the lifecycle history of a restaurant, oldest first.
func (i *Indexer) Registrations(ctx context.Context, restaurant string) ([]Registration, error) {
	addr, err := normalizeAddress(restaurant)
	if err != nil {
		return nil, err
	}
	var rows []Registration
	err = i.db.WithContext(ctx).
		Where("restaurant = ?", addr).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func normalizeAddress(raw string) (string, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return "", fmt.Errorf("indexer: restaurant: %w", err)
	}
	return crypto.MustNewAddress(crypto.DinePrefix, addr.Bytes()).String(), nil
}

func toRecord(e events.Event) any {
	switch evt := e.(type) {
	case events.PaymentProcessed:
		attrs := evt.Event().Attributes
		ts, _ := strconv.ParseInt(attrs["timestamp"], 10, 64)
		return &Payment{
			ID:             uuid.New(),
			Payer:          attrs["payer"],
			Restaurant:     attrs["restaurant"],
			OriginalAmount: attrs["originalAmount"],
			AdjustedAmount: attrs["adjustedAmount"],
			CustomRatio:    attrs["customRatio"],
			Timestamp:      ts,
		}
	case events.RestaurantRegistered:
		attrs := evt.Event().Attributes
		return &Registration{
			ID:         uuid.New(),
			Restaurant: attrs["restaurant"],
			PlaceID:    attrs["placeId"],
			Action:     ActionRegistered,
			Sequence:   evt.Sequence,
		}
	case events.RestaurantRemoved:
		attrs := evt.Event().Attributes
		return &Registration{
			ID:         uuid.New(),
			Restaurant: attrs["restaurant"],
			PlaceID:    attrs["placeId"],
			Action:     ActionRemoved,
			Caller:     attrs["caller"],
		}
	}
	return nil
}
