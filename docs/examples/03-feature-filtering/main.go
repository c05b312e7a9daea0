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

	ctx := context.Background()

	// Primary or secondary roads with at least four lanes
	filter := shapestore.And(
		shapestore.Or(
			shapestore.PropertyIsEqualTo("TYPE", "primary"),
			shapestore.PropertyIsEqualTo("TYPE", "secondary"),
		),
		shapestore.Compare("LANES", shapestore.OpGreaterEqual, 4),
	)

	wide, err := store.Count(ctx, shapestore.NewQuery(shapestore.WithFilter(filter)))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Wide main roads: %d\n", wide)

	// Ten longest streets named like "Main*", longest first
	rs, err := store.Query(ctx, shapestore.NewQuery(
		shapestore.WithFilter(shapestore.PropertyIsLikeFold("NAME", "main*")),
		shapestore.WithSortBy(shapestore.SortKey{Property: "LENGTH", Descending: true}),
		shapestore.WithMaxRecords(10),
	))
	if err != nil {
		log.Fatal(err)
	}
	records, err := rs.Collect()
	if err != nil {
		log.Fatal(err)
	}
	for _, rec := range records {
		fmt.Printf("  %s %v %v\n", rec.FeatureID(), rec.Attributes["NAME"], rec.Attributes["LENGTH"])
	}

	// Direct lookup by record id
	rs, err = store.Query(ctx, shapestore.NewQuery(shapestore.WithFilter(shapestore.IDs(1, 2, 3))))
	if err != nil {
		log.Fatal(err)
	}
	records, err = rs.Collect()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Records 1-3: %d found\n", len(records))
}
