package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/local/ebookconv/internal/batch"
	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/store"
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Convert every supported file in a folder or S3 prefix",
	Long: `Converts files one at a time. Each converted file replaces its original;
files that fail are left untouched. Files already in the target format are skipped.
With --s3 the collection is the configured bucket instead of a local folder.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().String("to", "", "target format (epub, txt, mobi, azw3)")
	batchCmd.Flags().Bool("s3", false, "use the configured S3 bucket as the collection")
	batchCmd.Flags().String("s3-prefix", "", "override S3_PREFIX")
	batchCmd.Flags().StringSlice("only", nil, "convert only these file names")
	_ = batchCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	toLabel, _ := cmd.Flags().GetString("to")
	useS3, _ := cmd.Flags().GetBool("s3")
	prefix, _ := cmd.Flags().GetString("s3-prefix")
	only, _ := cmd.Flags().GetStringSlice("only")

	target, err := format.Parse(toLabel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a := newApp(ctx, cfg)
	defer a.close()

	var (
		coll  batch.Collection
		where string
	)
	if useS3 {
		c, err := a.s3(ctx, prefix)
		if err != nil {
			return err
		}
		coll, where = c, c.String()
	} else {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		d, err := batch.OpenDir(fs, dir)
		if err != nil {
			return err
		}
		coll, where = d, d.Path()
	}

	names, err := coll.List(ctx)
	if err != nil {
		return err
	}
	selected := selectNames(names, only, target)
	if len(selected) == 0 {
		cmd.Printf("Nothing to convert in %s.\n", where)
		return nil
	}

	cmd.Printf("Converting %d files in %s to %s\n", len(selected), where, target)
	rep, err := batch.NewRunner(a.router(), a.status).Run(ctx, coll, selected, target)
	printReport(cmd, rep)
	if err != nil {
		return err
	}
	if n := rep.Count(store.Error); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(rep.Files))
	}
	return nil
}

// selectNames keeps names not already in target, restricted to only when given.
func selectNames(names, only []string, target format.Format) []string {
	want := make(map[string]bool, len(only))
	for _, n := range only {
		want[n] = true
	}
	var out []string
	for _, n := range names {
		if len(want) > 0 && !want[n] {
			continue
		}
		if f, err := format.FromFilename(n); err == nil && f == target {
			continue
		}
		out = append(out, n)
	}
	return out
}

func printReport(cmd *cobra.Command, rep batch.Report) {
	cmd.Printf("Batch %s\n", rep.BatchID)
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, f := range rep.Files {
		detail := f.Output
		if f.Status == store.Error {
			detail = strings.ReplaceAll(f.Message, "\n", " ")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, f.Status, detail)
	}
	_ = tw.Flush()
}
