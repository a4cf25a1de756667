package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/loader"
	"github.com/chazu/classreg/store"
)

const (
	flagOut   = "out"
	flagStore = "store"
)

func newPackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack SPEC.toml...",
		Short: "Encode TOML class specs into class files",
		Long: `Packs the classes described in TOML class specs into class files,
  written under a directory (one file per class, laid out by package) or
  into a SQLite or DuckDB class store.`,
		Example: `  classreg pack classes.toml --out build/classes
  classreg pack classes.toml --store sqlite:build/classes.db`,
		Args:              cobra.MinimumNArgs(1),
		RunE:              runPack,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.Flags().String(flagOut, "", "directory to write class files to")
	cmd.Flags().String(flagStore, "", "class store to write to (sqlite:PATH or duckdb:PATH)")
	cmd.MarkFlagsOneRequired(flagOut, flagStore)
	cmd.MarkFlagsMutuallyExclusive(flagOut, flagStore)
	return cmd
}

func runPack(cmd *cobra.Command, args []string) error {
	classes := make(map[string][]byte)
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		spec, err := classfile.ParseSpec(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		packed, err := spec.Pack()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for name, b := range packed {
			if _, dup := classes[name]; dup {
				return fmt.Errorf("%s: %w: class %s declared twice", path, classfile.ErrDuplicateEntry, name)
			}
			classes[name] = b
		}
	}

	if err := writeClasses(cmd, classes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "packed %d classes\n", len(classes))
	return nil
}

// writeClasses stores classes in the --out directory or the --store.
func writeClasses(cmd *cobra.Command, classes map[string][]byte) error {
	if location, _ := cmd.Flags().GetString(flagStore); location != "" {
		s, err := store.OpenLocation(location)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.PutAll(cmd.Context(), classes)
	}

	out, _ := cmd.Flags().GetString(flagOut)
	if err := os.MkdirAll(out, 0755); err != nil {
		return err
	}
	dir, err := loader.NewDirSource(out)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := dir.Write(name, classes[name]); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
