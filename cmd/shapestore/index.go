package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func newIndexCommand(a *app) *cobra.Command {
	var (
		force       bool
		compression string
		fanout      int
	)
	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Build or rebuild the side-car index",
		Long: `Build the R-tree side-car index of a shapefile. An index that is up to
date with the geometry file is kept unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.storeOptions()
			if err != nil {
				return err
			}
			opts.ReadOnly = false
			opts.ForceRebuild = force
			if cmd.Flags().Changed("compression") {
				if opts.IndexCompression, err = shapestore.ParseCompression(compression); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("fanout") {
				opts.Fanout = fanout
			}

			start := time.Now()
			s, err := shapestore.Open(args[0], opts)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Len()
			if err != nil {
				return err
			}
			info, err := os.Stat(s.IndexPath())
			if err != nil {
				return fmt.Errorf("index not written: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s records, %s index in %s\n",
				s.IndexPath(), humanize.Comma(int64(n)), humanize.Bytes(uint64(info.Size())),
				time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rebuild even if the index is up to date")
	cmd.Flags().StringVar(&compression, "compression", "lz4", "index compression: none, lz4, zstd")
	cmd.Flags().IntVar(&fanout, "fanout", shapestore.DefaultFanout, "R-tree node capacity")
	return cmd
}
