// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOUND PORTS
// Порты, которые обработчики запросов используют помимо хранилища.
// Реализации находятся в infrastructure (redis, prometheus).
// ══════════════════════════════════════════════════════════════════════════════

// Cache - кэш готовых результатов. Ключ строит обработчик, namespace
// разделяет виды результатов. Промах возвращает (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
}

// Metrics - метрики обработчиков запросов.
type Metrics interface {
	// ObserveSearch регистрирует длительность поиска и диагностики разбора.
	ObserveSearch(d time.Duration, diagnostics []string)

	// ObserveAggregation регистрирует длительность построения сводной таблицы.
	ObserveAggregation(operation string, d time.Duration)

	// CacheResult регистрирует попадание или промах кэша.
	CacheResult(namespace string, hit bool)
}

// NopMetrics - метрики, которые ничего не делают.
type NopMetrics struct{}

func (NopMetrics) ObserveSearch(time.Duration, []string)     {}
func (NopMetrics) ObserveAggregation(string, time.Duration) {}
func (NopMetrics) CacheResult(string, bool)                 {}
