package main

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func processGeometry(rec *shapestore.Record) {
	if rec.Geometry == nil {
		fmt.Println("Null shape")
		return
	}

	switch g := rec.Geometry.Shape.(type) {
	case orb.Point:
		fmt.Printf("Point: %.6f, %.6f\n", g[0], g[1])

	case orb.MultiPoint:
		fmt.Printf("MultiPoint with %d points\n", len(g))

	case orb.MultiLineString:
		// One line per part
		fmt.Printf("Line with %d parts, length %.2f\n", len(g), planar.Length(g))

	case orb.MultiPolygon:
		// Outer rings with their holes attached
		holes := 0
		for _, poly := range g {
			holes += len(poly) - 1
		}
		fmt.Printf("Polygon with %d parts, %d holes, area %.2f\n", len(g), holes, planar.Area(g))
	}

	// Z and M values follow the vertex order of the file
	if len(rec.Geometry.Z) > 0 {
		fmt.Printf("  first Z: %.2f\n", rec.Geometry.Z[0])
	}
}

func main() {
	store, err := shapestore.Open("parcels.shp", shapestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	// Process the first few records
	rs, err := store.Query(context.Background(), shapestore.NewQuery(shapestore.WithMaxRecords(3)))
	if err != nil {
		log.Fatal(err)
	}
	defer rs.Close()

	for rs.Next() {
		rec := rs.Record()
		fmt.Printf("\n%s:\n", rec.FeatureID())
		processGeometry(rec)
	}
	if err := rs.Err(); err != nil {
		log.Fatal(err)
	}
}
