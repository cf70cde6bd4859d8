package store

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeApplied  = "applied"
	outcomeNoop     = "noop"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type instruments struct {
	mutations metric.Int64Counter
	persist   metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)

	mutations, err := meter.Int64Counter("store.mutations",
		metric.WithDescription("Mutations processed by collection writers, by outcome."),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mutations counter: %w", err)
	}

	persist, err := meter.Float64Histogram("store.persist.duration",
		metric.WithDescription("Time spent saving a collection snapshot."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating persist histogram: %w", err)
	}

	return &instruments{mutations: mutations, persist: persist}, nil
}

func (i *instruments) recordMutation(ctx context.Context, collection, op, outcome string) {
	i.mutations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (i *instruments) recordPersist(ctx context.Context, collection string, d time.Duration) {
	i.persist.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("collection", collection),
	))
}
