package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/router"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List supported conversions and how each is carried out",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SOURCE\tTARGET\tPATH")
		for _, src := range format.All() {
			for _, tgt := range format.All() {
				plan, err := router.SelectPath(src, tgt)
				if err != nil {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", src, tgt, plan)
			}
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
