package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments bundles the counters the collection store records. Instrument
// creation goes through the global meter, so with telemetry disabled these
// are no-ops.
type Instruments struct {
	fetches   metric.Int64Counter
	mutations metric.Int64Counter
	rollbacks metric.Int64Counter
}

var (
	instrumentsOnce sync.Once
	instruments     *Instruments
)

// StoreInstruments returns the shared store instrument set.
func StoreInstruments() *Instruments {
	instrumentsOnce.Do(func() {
		m := Meter(instrumentationScope + "/store")
		fetches, _ := m.Int64Counter("trellis.store.fetches",
			metric.WithDescription("Pages fetched and merged, by scope kind"),
		)
		mutations, _ := m.Int64Counter("trellis.store.mutations",
			metric.WithDescription("Optimistic mutations applied, by operation"),
		)
		rollbacks, _ := m.Int64Counter("trellis.store.rollbacks",
			metric.WithDescription("Optimistic mutations rolled back after remote failure"),
		)
		instruments = &Instruments{fetches: fetches, mutations: mutations, rollbacks: rollbacks}
	})
	return instruments
}

// RecordFetch counts a merged fetch for a scope kind.
func (i *Instruments) RecordFetch(ctx context.Context, scopeKind string) {
	if i == nil || i.fetches == nil {
		return
	}
	i.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("scope.kind", scopeKind)))
}

// RecordMutation counts an optimistic mutation by operation name.
func (i *Instruments) RecordMutation(ctx context.Context, op string) {
	if i == nil || i.mutations == nil {
		return
	}
	i.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordRollback counts a rollback by operation name.
func (i *Instruments) RecordRollback(ctx context.Context, op string) {
	if i == nil || i.rollbacks == nil {
		return
	}
	i.rollbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
