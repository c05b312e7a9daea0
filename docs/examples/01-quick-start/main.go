package main

import (
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	// Open the store; the side-car index is built on first open
	store, err := shapestore.Open("roads.shp", shapestore.DefaultOptions())
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	n, err := store.Len()
	if err != nil {
		log.Fatal(err)
	}
	extent, err := store.Envelope()
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Type: %s\n", store.TypeName())
	fmt.Printf("CRS: %s\n", store.CRS())
	fmt.Printf("Records: %d\n", n)
	fmt.Printf("Extent: [%.4f,%.4f] to [%.4f,%.4f]\n",
		extent.MinX, extent.MinY,
		extent.MaxX, extent.MaxY)
}
