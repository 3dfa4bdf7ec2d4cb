// Package metrics holds the service's Prometheus collectors. Each file
// declares its collectors and queues them from init; cmd/app registers the
// queue once at startup.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

func register(cs ...prometheus.Collector) { pending = append(pending, cs...) }

// MustRegister adds every queued collector to the default registry. Later
// calls are no-ops.
func MustRegister() {
	registerOnce.Do(func() { prometheus.MustRegister(pending...) })
}

// norm keeps label values stable regardless of caller casing.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
