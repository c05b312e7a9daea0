// Package shapestore serves the records of ESRI shapefiles as a queryable
// feature store.
//
// A Store reads the geometry file (.shp) and the attribute file (.dbf) in
// place, keeps an R-tree over the record envelopes in a side-car file next
// to them, and answers queries made of a bounding box that selects index
// candidates and a filter evaluated per record. Results stream from a
// bounded queue, so a large result never has to fit in memory.
//
// # Basic Usage
//
//	store, err := shapestore.Open("/data/roads.shp", shapestore.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	q := shapestore.NewQuery(
//	    shapestore.WithLooseBBox(shapestore.NewEnvelope(-71.5, 42.0, -71.0, 42.5, "")),
//	    shapestore.WithFilter(shapestore.PropertyIsEqualTo("TYPE", "primary")),
//	)
//	rs, err := store.Query(ctx, q)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rs.Close()
//	for rs.Next() {
//	    rec := rs.Record()
//	    fmt.Println(rec.FeatureID(), rec.Attributes["NAME"])
//	}
//	if err := rs.Err(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Live Reload
//
// The store compares the size and modification time of its files before
// each query. When either file changed, the affected reader is reopened
// and, for the geometry file, the index is rebuilt and saved again. A
// deleted attribute file turns the store geometry-only; a geometry file
// that can no longer be read makes the store unavailable until Reload
// succeeds.
//
// # Coordinate Systems
//
// Envelopes carry a CRS code. Query envelopes in another CRS than the
// store's are reprojected by the store's Transformer before the index is
// searched. When reprojection fails the query scans every record instead.
//
// # Catalogs
//
// BuildCatalog indexes the extents of all shapefiles under a directory and
// opens the stores covering an area on demand through a bounded cache.
package shapestore
