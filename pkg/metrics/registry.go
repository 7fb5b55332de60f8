// Package metrics provides optional Prometheus metrics for the server.
//
// All metrics are opt-in: if InitRegistry is never called, constructors
// return nil and the nil-safe recording methods become no-ops, so the hot
// path carries no metrics overhead when disabled.
//
// Usage:
//
//	metrics.InitRegistry()
//	m := metrics.NewServerMetrics()
//	m.ConnOpened()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all server metrics.
	// Write-once through registryOnce, read-many afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry. Safe to call
// multiple times; subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
