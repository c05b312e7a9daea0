package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	paths, err := filepath.Glob("data/*.shp")
	if err != nil {
		log.Fatal(err)
	}

	// One pool for all stores: at most four result sets read at a time,
	// together no faster than 50k records per second
	opts := shapestore.DefaultOptions()
	opts.Pool = shapestore.NewWorkerPool(4, shapestore.WithRecordRate(50000))
	opts.QueueSize = 200
	opts.QueueMinFill = 50

	start := time.Now()
	stores, errs := shapestore.OpenStores(paths, opts, shapestore.LoadOptions{
		Workers:    8,
		SkipErrors: true,
	})
	for _, err := range errs {
		log.Printf("skipped: %v", err)
	}
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()
	fmt.Printf("Opened %d stores in %v\n", len(stores), time.Since(start))

	// Large results stream through a bounded queue; skipping geometry
	// decoding makes a scan over attributes much cheaper
	q := shapestore.NewQuery(shapestore.WithoutGeometries())
	for _, s := range stores {
		start := time.Now()
		rs, err := s.Query(context.Background(), q)
		if err != nil {
			log.Fatal(err)
		}
		n := 0
		for rs.Next() {
			n++
		}
		if err := rs.Err(); err != nil {
			log.Fatal(err)
		}
		rs.Close()
		fmt.Printf("%s: %d records in %v\n", s.TypeName(), n, time.Since(start))
	}
}
