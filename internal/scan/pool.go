package scan

import (
	"context"
	"sync"
)

// Pool bounds how many servers scan concurrently, keeping file-descriptor
// and container-exec usage under control when the fleet is large.
type Pool struct {
	coordinator *Coordinator
	workers     int
}

// NewPool creates a scan pool. workers <= 0 selects 4.
func NewPool(coordinator *Coordinator, workers int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	return &Pool{coordinator: coordinator, workers: workers}
}

// ScanAll scans every listed server through the bounded pool and returns
// per-server results and errors. A failing server never blocks the rest.
func (p *Pool) ScanAll(ctx context.Context, serverIDs []string) (map[string]*Result, map[string]error) {
	results := make(map[string]*Result, len(serverIDs))
	errs := make(map[string]error)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.workers)
	)

	for _, serverID := range serverIDs {
		if ctx.Err() != nil {
			mu.Lock()
			errs[serverID] = ctx.Err()
			mu.Unlock()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := p.coordinator.Scan(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[id] = err
				return
			}
			results[id] = result
		}(serverID)
	}

	wg.Wait()
	return results, errs
}
