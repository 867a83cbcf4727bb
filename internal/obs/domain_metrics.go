package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceQuotesTotal counts price calculations by target currency.
	PriceQuotesTotal *prometheus.CounterVec
	// CartUpdateRetriesTotal counts recoverable cart mutation retries by conflict kind.
	CartUpdateRetriesTotal *prometheus.CounterVec
	// CartReconcileTotal counts region reconciliation passes by outcome.
	CartReconcileTotal *prometheus.CounterVec
	// CartSnapshotRestoreTotal counts rollback restores after failed mutations.
	CartSnapshotRestoreTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_quotes_total",
			Help:      "Count of design price calculations by target currency.",
		}, []string{"currency"})
		CartUpdateRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_update_retries_total",
			Help:      "Count of cart mutation retries by recoverable conflict kind.",
		}, []string{"reason"})
		CartReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_reconcile_total",
			Help:      "Count of region reconciliation passes by outcome.",
		}, []string{"outcome"})
		CartSnapshotRestoreTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_snapshot_restore_total",
			Help:      "Count of snapshot rollbacks applied after failed cart mutations.",
		})

		mustRegisterCollector(reg, PriceQuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceQuotesTotal = v
			}
		})
		mustRegisterCollector(reg, CartUpdateRetriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartUpdateRetriesTotal = v
			}
		})
		mustRegisterCollector(reg, CartReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartReconcileTotal = v
			}
		})
		mustRegisterCollector(reg, CartSnapshotRestoreTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartSnapshotRestoreTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
