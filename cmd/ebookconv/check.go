package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/local/ebookconv/internal/health"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report the state of remote converters and storage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := newApp(cmd.Context(), cfg)
		defer a.close()

		llm := a.llm()
		s := a.checker(cmd.Context(), llm).Summary(cmd.Context())

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, row := range []struct {
			name string
			st   health.Status
		}{
			{"redis", s.Redis},
			{"s3", s.S3},
			{"cloudconvert", s.CloudConvert},
			{"backend", s.Backend},
			{"calibre", s.Calibre},
			{"llm", s.LLM},
		} {
			mark := "FAIL"
			if row.st.OK {
				mark = "ok"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", row.name, mark, row.st.Message)
		}
		_ = tw.Flush()

		if !s.CanDelegate() {
			cmd.Println("No remote converter available: MOBI and AZW3 conversions will fail.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
