package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func newCatalogCommand(a *app) *cobra.Command {
	var bbox, crs string
	cmd := &cobra.Command{
		Use:   "catalog <dir>",
		Short: "List the shapefiles under a directory that cover an area",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storeOpts, err := a.storeOptions()
			if err != nil {
				return err
			}
			opts := a.cfg.CatalogOptions(storeOpts)
			if crs != "" {
				opts.CRS = crs
			}

			cat, errs := shapestore.BuildCatalog(args[0], opts)
			for _, err := range errs {
				a.log.Warn("shapefile skipped", "error", err)
			}
			if cat == nil {
				return fmt.Errorf("no catalog built from %s", args[0])
			}
			defer cat.Close()

			entries := cat.Entries()
			if bbox != "" {
				env, err := shapestore.ParseBBox(bbox, cat.CRS())
				if err != nil {
					return err
				}
				entries = cat.Search(env)
			}

			tbl := newTable(cmd.OutOrStdout())
			tbl.AppendHeader(table.Row{"Name", "Shape", "Records", "Fields", "CRS", "Extent (" + cat.CRS() + ")"})
			for _, e := range entries {
				tbl.AppendRow(table.Row{
					e.Name, e.ShapeType, humanize.Comma(int64(e.Records)), e.Fields, e.CRS, e.Envelope.WithCRS(""),
				})
			}
			tbl.AppendFooter(table.Row{fmt.Sprintf("%d of %d stores", len(entries), cat.Len())})
			tbl.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&bbox, "bbox", "", "only list stores intersecting minx,miny,maxx,maxy")
	cmd.Flags().StringVar(&crs, "crs", "", "CRS of the catalog and --bbox (default CRS:84)")
	return cmd
}
