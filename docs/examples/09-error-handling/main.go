package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func safeOpen(path string) (*shapestore.Store, error) {
	store, err := shapestore.Open(path, shapestore.DefaultOptions())
	switch {
	case errors.Is(err, shapestore.ErrNotFound):
		return nil, fmt.Errorf("shapefile not found: %s", path)
	case errors.Is(err, shapestore.ErrMalformedHeader):
		return nil, fmt.Errorf("not a shapefile: %s", path)
	case err != nil:
		return nil, err
	}

	// A store without records or extent is usable but suspicious
	if env, err := store.Envelope(); err == nil && env.IsEmpty() {
		log.Printf("Warning: %s contains no shapes", path)
	}
	return store, nil
}

func main() {
	store, err := safeOpen("roads.shp")
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	defer store.Close()

	ctx := context.Background()

	// A store serves a single feature type
	_, err = store.Query(ctx, shapestore.NewQuery(shapestore.WithTypeNames("roads", "rivers")))
	if errors.Is(err, shapestore.ErrUnsupportedQuery) {
		log.Printf("Expected error: %v", err)
	}

	// Ids are 1-based and bounded by the record count
	if _, err := store.Get(ctx, 0); errors.Is(err, shapestore.ErrOutOfRange) {
		log.Printf("Expected error: %v", err)
	}

	// Records that fail to decode are skipped and logged, not returned as errors;
	// Err reports only failures of the result set as a whole
	rs, err := store.Query(ctx, shapestore.NewQuery())
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close()
	for rs.Next() {
	}
	if err := rs.Err(); err != nil {
		log.Printf("Error: %v", err)
	}

	_, err = safeOpen("missing.shp")
	if err != nil {
		log.Printf("Expected error: %v", err)
	}
}
