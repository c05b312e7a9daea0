package shapestore

import (
	"fmt"
	"io"
	"runtime"
	"sync"
)

// LoadOptions controls how OpenStores opens many shapefiles.
type LoadOptions struct {
	// Workers is the number of stores opened concurrently. Zero means
	// runtime.NumCPU().
	Workers int

	// SkipErrors keeps going when a store fails to open. The failures are
	// returned alongside the stores that opened. Without it the first
	// failure ends loading.
	SkipErrors bool

	// Progress, if set, is called after each store is processed with the
	// number processed so far and the total.
	Progress func(loaded, total int)

	// ErrorLog, if set, receives one line per failed store.
	ErrorLog io.Writer
}

// DefaultLoadOptions returns parallel loading that skips failures.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// OpenStores opens the shapefiles at paths on a pool of workers. Opening a
// store builds its side-car index when needed, which dominates the cost
// for large files.
//
// The stores are returned in path order. With SkipErrors, stores that
// failed are left out and their errors returned; otherwise a failure
// closes every store already opened and returns that failure alone.
//
// Example:
//
//	stores, errs := shapestore.OpenStores(paths, shapestore.DefaultOptions(), shapestore.LoadOptions{
//	    Workers:    8,
//	    SkipErrors: true,
//	    Progress: func(loaded, total int) {
//	        fmt.Printf("\rOpening: %d/%d", loaded, total)
//	    },
//	})
//	defer func() {
//	    for _, s := range stores {
//	        s.Close()
//	    }
//	}()
func OpenStores(paths []string, opts Options, load LoadOptions) ([]*Store, []error) {
	if len(paths) == 0 {
		return nil, nil
	}

	workers := load.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(paths))

	type openResult struct {
		index int
		store *Store
		err   error
	}

	jobs := make(chan int, len(paths))
	results := make(chan openResult, len(paths))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s, err := Open(paths[i], opts)
				results <- openResult{index: i, store: s, err: err}
			}
		}()
	}

	for i := range paths {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	opened := make([]*Store, len(paths))
	var errs []error
	var failed error
	loaded := 0
	for r := range results {
		loaded++
		if load.Progress != nil {
			load.Progress(loaded, len(paths))
		}
		if r.err != nil {
			err := fmt.Errorf("%s: %w", paths[r.index], r.err)
			if load.ErrorLog != nil {
				fmt.Fprintf(load.ErrorLog, "open store: %v\n", err)
			}
			if !load.SkipErrors && failed == nil {
				failed = err
			}
			errs = append(errs, err)
			continue
		}
		opened[r.index] = r.store
	}

	if failed != nil {
		for _, s := range opened {
			if s != nil {
				s.Close()
			}
		}
		return nil, []error{failed}
	}

	stores := make([]*Store, 0, len(paths))
	for _, s := range opened {
		if s != nil {
			stores = append(stores, s)
		}
	}
	return stores, errs
}
