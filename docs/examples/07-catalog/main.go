package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	opts := shapestore.DefaultCatalogOptions()
	opts.MaxOpen = 8
	opts.Load.Progress = func(loaded, total int) {
		fmt.Printf("\rIndexing: %d/%d", loaded, total)
	}

	catalog, errs := shapestore.BuildCatalog("data", opts)
	fmt.Println()
	for _, err := range errs {
		log.Printf("skipped: %v", err)
	}
	if catalog == nil {
		log.Fatal("no shapefiles could be opened")
	}
	defer catalog.Close()

	fmt.Printf("Catalog contains %d stores\n\n", catalog.Len())
	for _, e := range catalog.Entries() {
		fmt.Printf("%s (%s, %d records)\n", e.Name, e.ShapeType, e.Records)
		fmt.Printf("  Path: %s\n", e.Path)
		fmt.Printf("  Extent: %s\n", e.Envelope)
	}

	// Stores covering Boston Harbor
	area := shapestore.NewEnvelope(-71.1, 42.3, -71.0, 42.4, shapestore.CRS84)
	for _, e := range catalog.Search(area) {
		store, err := catalog.Open(e.Name)
		if err != nil {
			log.Fatal(err)
		}
		n, err := store.Count(context.Background(), shapestore.NewQuery(shapestore.WithLooseBBox(area)))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s: %d records in the area\n", e.Name, n)
	}

	stats := catalog.CacheStats()
	fmt.Printf("Open stores: %d/%d (hits %d, misses %d)\n", stats.Open, stats.MaxOpen, stats.Hits, stats.Misses)
}
