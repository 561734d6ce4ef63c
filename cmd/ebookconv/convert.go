package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/local/ebookconv/internal/format"
	"github.com/local/ebookconv/internal/router"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file>",
	Short: "Convert a single file",
	Long: `Converts one file to the format given by --to. The output is written next to
the input with the target extension unless --out is set. The input is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

// fs is the filesystem the CLI reads and writes; tests swap in a MemMapFs.
var fs = afero.NewOsFs()

func init() {
	convertCmd.Flags().String("to", "", "target format (pdf, epub, txt, mobi, azw3)")
	convertCmd.Flags().String("out", "", "output path")
	_ = convertCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	in := args[0]
	toLabel, _ := cmd.Flags().GetString("to")
	out, _ := cmd.Flags().GetString("out")

	target, err := format.Parse(toLabel)
	if err != nil {
		return err
	}
	src, err := format.FromFilename(in)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	data, err := afero.ReadFile(fs, in)
	if err != nil {
		return err
	}

	a := newApp(cmd.Context(), cfg)
	defer a.close()

	res, err := a.router().Convert(cmd.Context(), router.Source{Name: filepath.Base(in), Data: data, Format: src}, target)
	if err != nil {
		return err
	}
	if out == "" {
		out = format.ReplaceExtension(in, target)
	}
	if err := afero.WriteFile(fs, out, res.Data, 0o644); err != nil {
		return err
	}
	cmd.Printf("%s -> %s (%s)\n", in, out, res.Plan)
	return nil
}
