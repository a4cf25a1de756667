package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/classreg/classfile"
	"github.com/chazu/classreg/loader"
)

const flagVerify = "verify"

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import DIR",
		Short: "Copy a directory of class files into a class store",
		Example: `  classreg import build/classes --store sqlite:classes.db
  classreg import build/classes --store duckdb:classes.duckdb --verify=false`,
		Args:              cobra.ExactArgs(1),
		RunE:              runImport,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.Flags().String(flagStore, "", "class store to write to (sqlite:PATH or duckdb:PATH)")
	cmd.Flags().Bool(flagVerify, true, "decode every class file before importing it")
	_ = cmd.MarkFlagRequired(flagStore)
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	src, err := loader.NewDirSource(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	names, err := src.Names(ctx)
	if err != nil {
		return err
	}
	verify, _ := cmd.Flags().GetBool(flagVerify)

	classes := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := src.Find(ctx, name)
		if err != nil {
			return err
		}
		if verify {
			if err := verifyClass(name, data); err != nil {
				return err
			}
		}
		classes[name] = data
	}

	if err := writeClasses(cmd, classes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d classes from %s\n", len(classes), src.Location())
	return nil
}

// verifyClass checks that data decodes and declares name.
func verifyClass(name string, data []byte) error {
	f, err := classfile.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if f.Magic != classfile.Magic {
		return fmt.Errorf("%s: %w", name, classfile.ErrBadMagic)
	}
	if f.Name != name {
		return fmt.Errorf("%s: %w: file declares %s", name, classfile.ErrWrongName, f.Name)
	}
	return nil
}
