package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <path>",
		Short: "Describe a shapefile",
		Long:  "Print the type name, CRS, shape type, record count, extent, file sizes and attribute schema of a shapefile.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore(args[0])
			if err != nil {
				return err
			}
			defer s.Close()
			return printInfo(cmd.OutOrStdout(), s)
		},
	}
}

func printInfo(w io.Writer, s *shapestore.Store) error {
	n, err := s.Len()
	if err != nil {
		return err
	}
	st, err := s.ShapeType()
	if err != nil {
		return err
	}
	env, err := s.Envelope()
	if err != nil {
		return err
	}
	schema, err := s.Schema()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Type name:  %s\n", s.TypeName())
	fmt.Fprintf(w, "CRS:        %s\n", s.CRS())
	fmt.Fprintf(w, "Shape type: %s\n", st)
	fmt.Fprintf(w, "Records:    %s\n", humanize.Comma(int64(n)))
	fmt.Fprintf(w, "Extent:     %s\n", env)
	fmt.Fprintf(w, "Generation: %d\n", s.Generation())

	files := newTable(w)
	files.AppendHeader(table.Row{"File", "Size"})
	for _, path := range []string{s.Path(), s.AttributePath(), s.IndexPath()} {
		size := "missing"
		if info, err := os.Stat(path); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		files.AppendRow(table.Row{path, size})
	}
	files.Render()

	fields := newTable(w)
	fields.AppendHeader(table.Row{"Field", "Type", "Width", "Decimals"})
	for _, f := range schema.AttributeFields() {
		fields.AppendRow(table.Row{f.Name, f.Type, f.Width, f.Decimals})
	}
	fields.Render()
	return nil
}
