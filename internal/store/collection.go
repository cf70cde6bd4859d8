package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/jensholdgaard/auctionhouse/internal/store"

// Options carries the ambient dependencies of a Collection. Nil fields fall
// back to slog.Default and no-op providers.
type Options struct {
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Collection is the single authority over one kind of record. Reads are
// served from the published snapshot under a shared lock. Mutations run one
// at a time on a dedicated writer goroutine, which builds the next snapshot,
// persists it through the Backend and only then publishes it. A failed save
// therefore leaves readers on the last durable state.
type Collection[T Record[T]] struct {
	name    string
	backend Backend
	codec   Codec[T]
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *instruments

	mu      sync.RWMutex
	records []T
	index   map[string]int

	queue     chan mutation[T]
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type mutation[T any] struct {
	ctx   context.Context
	op    string
	apply func(cur []T, index map[string]int) (next []T, changed bool, err error)
	reply chan error
}

// Open loads the named collection from backend and starts its writer.
func Open[T Record[T]](ctx context.Context, name string, backend Backend, codec Codec[T], opts Options) (*Collection[T], error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = tracenoop.NewTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = metricnoop.NewMeterProvider()
	}

	m, err := newInstruments(opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	data, err := backend.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", name, err)
	}
	records, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	index, err := buildIndex(records)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", name, err)
	}

	c := &Collection[T]{
		name:    name,
		backend: backend,
		codec:   codec,
		logger:  opts.Logger.With(slog.String("collection", name)),
		tracer:  opts.TracerProvider.Tracer(instrumentationName),
		metrics: m,
		records: records,
		index:   index,
		queue:   make(chan mutation[T]),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()

	c.logger.InfoContext(ctx, "collection loaded", slog.Int("records", len(records)))
	return c, nil
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Len returns the number of records in the published snapshot.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.records[i], true
}

// Query filters, sorts and pages a copy of the published snapshot.
func (c *Collection[T]) Query(q Query[T]) []T {
	c.mu.RLock()
	out := make([]T, 0, len(c.records))
	for _, r := range c.records {
		if q.Filter == nil || q.Filter(r) {
			out = append(out, r)
		}
	}
	c.mu.RUnlock()

	if q.Compare != nil {
		slices.SortStableFunc(out, q.Compare)
	}
	return window(out, q.Offset, q.Limit)
}

// Count returns how many records match filter. A nil filter counts all.
func (c *Collection[T]) Count(filter func(T) bool) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if filter == nil {
		return len(c.records)
	}
	n := 0
	for _, r := range c.records {
		if filter(r) {
			n++
		}
	}
	return n
}

// Insert appends rec at version 0 and persists the collection.
func (c *Collection[T]) Insert(ctx context.Context, rec T) error {
	id := rec.RecordID()
	if id == "" {
		return ErrEmptyID
	}
	rec = rec.WithVersion(0)

	return c.submit(ctx, "insert", func(cur []T, index map[string]int) ([]T, bool, error) {
		if _, exists := index[id]; exists {
			return nil, false, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		return append(next, rec), true, nil
	})
}

// CompareAndUpdate replaces the stored record with rec if the stored version
// equals expected. The stored copy gets version expected+1 regardless of the
// version carried by rec. It reports false, without error, when the record
// is absent or the version does not match.
func (c *Collection[T]) CompareAndUpdate(ctx context.Context, rec T, expected int64) (bool, error) {
	id := rec.RecordID()
	swapped := false

	err := c.submit(ctx, "compare_and_update", func(cur []T, index map[string]int) ([]T, bool, error) {
		i, ok := index[id]
		if !ok || cur[i].RecordVersion() != expected {
			return nil, false, nil
		}
		next := slices.Clone(cur)
		next[i] = rec.WithVersion(expected + 1)
		swapped = true
		return next, true, nil
	})
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// DeleteMatching removes every record matching pred, persists once and
// returns the number removed.
func (c *Collection[T]) DeleteMatching(ctx context.Context, pred func(T) bool) (int, error) {
	removed := 0

	err := c.submit(ctx, "delete_matching", func(cur []T, _ map[string]int) ([]T, bool, error) {
		next := make([]T, 0, len(cur))
		for _, r := range cur {
			if pred(r) {
				removed++
				continue
			}
			next = append(next, r)
		}
		if removed == 0 {
			return nil, false, nil
		}
		return next, true, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close stops the writer. Mutations already accepted complete first;
// later ones fail with ErrClosed. Close does not close the Backend.
func (c *Collection[T]) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	<-c.done
	return nil
}

// submit hands a mutation to the writer and waits for its outcome. ctx only
// bounds the wait for the writer to accept it; an accepted mutation always
// runs to completion.
func (c *Collection[T]) submit(ctx context.Context, op string, apply func([]T, map[string]int) ([]T, bool, error)) error {
	ctx, span := c.tracer.Start(ctx, "Collection."+op,
		trace.WithAttributes(
			attribute.String("collection", c.name),
		),
	)
	defer span.End()

	m := mutation[T]{
		ctx:   context.WithoutCancel(ctx),
		op:    op,
		apply: apply,
		reply: make(chan error, 1),
	}

	select {
	case c.queue <- m:
	case <-c.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	err := <-m.reply
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Collection[T]) run() {
	defer close(c.done)
	for {
		select {
		case m := <-c.queue:
			m.reply <- c.commit(m)
		case <-c.closing:
			return
		}
	}
}

// commit runs on the writer goroutine only, which is the sole writer of
// c.records and c.index, so reading them here needs no lock.
func (c *Collection[T]) commit(m mutation[T]) error {
	next, changed, err := m.apply(c.records, c.index)
	if err != nil {
		c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeRejected)
		return err
	}
	if !changed {
		c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeNoop)
		return nil
	}

	nextIndex, err := buildIndex(next)
	if err != nil {
		c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeRejected)
		return err
	}

	data, err := c.codec.Encode(next)
	if err != nil {
		c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeFailed)
		return fmt.Errorf("encoding %s: %w", c.name, err)
	}

	start := time.Now()
	err = c.backend.Save(m.ctx, c.name, data)
	c.metrics.recordPersist(m.ctx, c.name, time.Since(start))
	if err != nil {
		c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeFailed)
		c.logger.ErrorContext(m.ctx, "persisting collection failed, mutation discarded",
			slog.String("op", m.op),
			slog.Any("error", err),
		)
		return fmt.Errorf("persisting %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.records = next
	c.index = nextIndex
	c.mu.Unlock()

	c.metrics.recordMutation(m.ctx, c.name, m.op, outcomeApplied)
	return nil
}

func buildIndex[T Record[T]](records []T) (map[string]int, error) {
	index := make(map[string]int, len(records))
	for i, r := range records {
		id := r.RecordID()
		if _, dup := index[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		index[id] = i
	}
	return index, nil
}

func window[T any](records []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []T{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}
	return records
}
