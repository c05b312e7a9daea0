package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	opts := shapestore.DefaultOptions()
	opts.Encoding = "windows-1252" // overrides the .cpg file
	store, err := shapestore.Open("parcels.shp", opts)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	schema, err := store.Schema()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("Fields:")
	for _, f := range schema.AttributeFields() {
		fmt.Printf("  %-10s %-8s width=%d decimals=%d\n", f.Name, f.Type, f.Width, f.Decimals)
	}

	// Read only the attributes we need, without decoding geometries
	rs, err := store.Query(context.Background(), shapestore.NewQuery(
		shapestore.WithProperties("OWNER", "ASSESSED", "SOLD"),
		shapestore.WithoutGeometries(),
		shapestore.WithMaxRecords(5),
	))
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close()

	for rs.Next() {
		rec := rs.Record()
		fmt.Printf("\n%s:\n", rec.FeatureID())

		// Values are typed by field: string, int64, float64, bool or time.Time
		if owner, ok := rec.Attributes["OWNER"].(string); ok {
			fmt.Printf("  Owner: %s\n", owner)
		}
		switch v := rec.Attributes["ASSESSED"].(type) {
		case int64:
			fmt.Printf("  Assessed: %d\n", v)
		case float64:
			fmt.Printf("  Assessed: %.2f\n", v)
		case nil:
			fmt.Println("  Assessed: unknown")
		}
		if sold, ok := rec.Attributes["SOLD"].(time.Time); ok {
			fmt.Printf("  Sold: %s\n", sold.Format(time.DateOnly))
		}
	}
	if err := rs.Err(); err != nil {
		log.Fatal(err)
	}
}
