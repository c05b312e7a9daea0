package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

type queryFlags struct {
	bbox       string
	crs        string
	where      []string
	ids        []int
	limit      int
	sort       []string
	properties []string
	noGeometry bool
	count      bool
}

func newQueryCommand(a *app) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query <path>",
		Short: "Select records by bounding box and attribute filters",
		Long: `Select the records of a shapefile and print them as a table.

Attribute conditions take the form FIELD OP VALUE with OP one of
=, <>, !=, <, <=, >, >= or ~ for a wildcard match (* and ?). Several
--where flags are combined with AND.`,
		Example: `  shapestore query roads.shp --bbox -71.5,42,-71,42.5 --where TYPE=primary
  shapestore query roads.shp --where 'LANES>=4' --sort LANES:desc --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.build()
			if err != nil {
				return err
			}
			s, err := a.openStore(args[0])
			if err != nil {
				return err
			}
			defer s.Close()

			if f.count {
				n, err := s.Count(cmd.Context(), q)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), humanize.Comma(int64(n)))
				return nil
			}
			return printRecords(cmd, s, q)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.bbox, "bbox", "", "bounding box minx,miny,maxx,maxy")
	flags.StringVar(&f.crs, "crs", "", "CRS of --bbox (default the store's)")
	flags.StringArrayVar(&f.where, "where", nil, "attribute condition FIELD OP VALUE (repeatable)")
	flags.IntSliceVar(&f.ids, "id", nil, "record ids to select")
	flags.IntVar(&f.limit, "limit", shapestore.Unbounded, "maximum records to print")
	flags.StringSliceVar(&f.sort, "sort", nil, "sort keys FIELD[:desc]")
	flags.StringSliceVar(&f.properties, "properties", nil, "attributes to print")
	flags.BoolVar(&f.noGeometry, "no-geometry", false, "skip geometry decoding")
	flags.BoolVar(&f.count, "count", false, "print the number of matching records only")
	return cmd
}

var whereExpr = regexp.MustCompile(`^\s*([^<>=!~\s]+)\s*(<=|>=|<>|!=|=|<|>|~)\s*(.*?)\s*$`)

// parseWhere turns FIELD OP VALUE into a filter.
func parseWhere(s string) (shapestore.Filter, error) {
	m := whereExpr.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("parse condition %q: want FIELD OP VALUE", s)
	}
	field, op, value := m[1], m[2], m[3]
	if op == "~" {
		return shapestore.PropertyIsLike(field, value), nil
	}
	parsed, err := shapestore.ParseOperator(op)
	if err != nil {
		return nil, err
	}
	return shapestore.Compare(field, parsed, value), nil
}

func (f *queryFlags) build() (*shapestore.Query, error) {
	opts := []shapestore.QueryOption{shapestore.WithMaxRecords(f.limit)}

	if f.bbox != "" {
		env, err := shapestore.ParseBBox(f.bbox, f.crs)
		if err != nil {
			return nil, err
		}
		opts = append(opts, shapestore.WithLooseBBox(env))
	}

	var filters []shapestore.Filter
	if len(f.ids) > 0 {
		filters = append(filters, shapestore.IDs(f.ids...))
	}
	for _, w := range f.where {
		filter, err := parseWhere(w)
		if err != nil {
			return nil, err
		}
		filters = append(filters, filter)
	}
	switch len(filters) {
	case 0:
	case 1:
		opts = append(opts, shapestore.WithFilter(filters[0]))
	default:
		opts = append(opts, shapestore.WithFilter(shapestore.And(filters...)))
	}

	for _, key := range f.sort {
		opts = append(opts, shapestore.WithSortBy(shapestore.ParseSortKey(key)))
	}
	if len(f.properties) > 0 {
		opts = append(opts, shapestore.WithProperties(f.properties...))
	}
	if f.noGeometry {
		opts = append(opts, shapestore.WithoutGeometries())
	}
	return shapestore.NewQuery(opts...), nil
}

func printRecords(cmd *cobra.Command, s *shapestore.Store, q *shapestore.Query) error {
	columns := q.Properties()
	if columns == nil {
		schema, err := s.Schema()
		if err != nil {
			return err
		}
		for _, field := range schema.AttributeFields() {
			columns = append(columns, field.Name)
		}
	}

	rs, err := s.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	defer rs.Close()

	w := cmd.OutOrStdout()
	tbl := newTable(w)
	header := table.Row{"FID", "Geometry", "Envelope"}
	for _, c := range columns {
		header = append(header, c)
	}
	tbl.AppendHeader(header)

	n := 0
	for rs.Next() {
		rec := rs.Record()
		row := table.Row{rec.FeatureID(), geometryLabel(rec), rec.Envelope.WithCRS("")}
		for _, c := range columns {
			v, _ := rec.Attribute(c)
			row = append(row, formatValue(v))
		}
		tbl.AppendRow(row)
		n++
	}
	if err := rs.Err(); err != nil {
		return err
	}
	tbl.AppendFooter(table.Row{fmt.Sprintf("%s records", humanize.Comma(int64(n)))})
	tbl.Render()
	return nil
}

func geometryLabel(rec *shapestore.Record) string {
	if rec.Geometry == nil || rec.Geometry.Shape == nil {
		if rec.Envelope.IsEmpty() {
			return "null"
		}
		return "-"
	}
	return rec.Geometry.Shape.GeoJSONType()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.Format(time.DateOnly)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
