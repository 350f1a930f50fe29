package upstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/mkowalski/recurdns/internal/dns/packet"
)

// Result pairs a candidate server with the outcome of querying it.
type Result struct {
	Server   string
	Response *packet.Message
	Err      error
}

// ParallelQuery sends m to candidates, at most parallelism at a time, and
// returns as soon as one answers successfully (cancelling the rest via
// ctx) or every candidate has failed. This is the Go-idiomatic rendering
// of pdnsd's par_queries-bounded non-blocking dispatch: rather than a
// single-threaded select-loop state machine driving N sockets by hand
// (INITIAL/UDP_INIT/TCP_INIT/.../DONE), goroutines do the blocking I/O and
// a buffered channel collects whichever finishes first.
func (t *Transport) ParallelQuery(ctx context.Context, candidates []string, m *packet.Message, parallelism int) (*packet.Message, []Result, error) {
	if len(candidates) == 0 {
		return nil, nil, fmt.Errorf("upstream: no candidate servers")
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan Result, len(candidates))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, server := range candidates {
		server := server
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			// Each candidate gets its own copy of the query message so
			// concurrent goroutines don't race on Header.ID mutation.
			mc := *m
			resp, err := t.Query(ctx, server, &mc)
			select {
			case results <- Result{Server: server, Response: resp, Err: err}:
			case <-ctx.Done():
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []Result
	for r := range results {
		all = append(all, r)
		if r.Err == nil {
			cancel()
			// Drain remaining goroutines in the background so this call
			// doesn't block on stragglers after a winner is found.
			go func() {
				for range results {
				}
			}()
			return r.Response, all, nil
		}
	}
	return nil, all, fmt.Errorf("upstream: all %d candidate(s) failed", len(candidates))
}
