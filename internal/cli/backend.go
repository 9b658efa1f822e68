package cli

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/runcache/internal/cache"
	"github.com/roach88/runcache/internal/observability"
	"github.com/roach88/runcache/internal/store"
)

// backend is a store with a coordinator in front of it. The store serves
// as both the run store and the config resolver.
type backend struct {
	store    *store.Store
	coord    *cache.Coordinator
	registry *prometheus.Registry
}

func openBackend(path string) (*backend, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	reg := prometheus.NewRegistry()
	coord := cache.New(st, st, cache.WithMetrics(observability.NewMetrics(reg)))
	return &backend{store: st, coord: coord, registry: reg}, nil
}

func (b *backend) Close() error {
	return b.store.Close()
}
