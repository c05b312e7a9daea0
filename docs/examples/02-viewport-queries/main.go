package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	store, err := shapestore.Open("roads.shp", shapestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Viewport in web mercator; the store reprojects it to its own CRS
	viewport := shapestore.NewEnvelope(-7914000, 5205000, -7903000, 5215000, shapestore.EPSG3857)

	// Only records whose envelope intersects the viewport are read
	rs, err := store.Query(context.Background(), shapestore.NewQuery(
		shapestore.WithLooseBBox(viewport),
	))
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close()

	visible := 0
	for rs.Next() {
		rec := rs.Record()
		fmt.Printf("  %s: %s\n", rec.FeatureID(), rec.Envelope)
		visible++
	}
	if err := rs.Err(); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Visible records: %d\n", visible)
}
