package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// Files replaced on disk are picked up by the next query
func watch(store *shapestore.Store) {
	ctx := context.Background()
	last := store.Generation()

	for range time.Tick(5 * time.Second) {
		n, err := store.Count(ctx, nil)
		switch {
		case errors.Is(err, shapestore.ErrStoreUnavailable):
			// The geometry file disappeared or became unreadable
			log.Printf("store unavailable: %v", err)
			continue
		case err != nil:
			log.Fatal(err)
		}

		if gen := store.Generation(); gen != last {
			fmt.Printf("Generation %d: %d records\n", gen, n)
			last = gen
		}
	}
}

func main() {
	store, err := shapestore.Open("roads.shp", shapestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Printf("Generation %d, available: %t\n", store.Generation(), store.Available())

	// Reload rereads the files now; force also rebuilds the index
	if err := store.Reload(context.Background(), true); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Generation %d after forced reload\n", store.Generation())

	watch(store)
}
