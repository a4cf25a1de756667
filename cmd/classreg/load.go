package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chazu/classreg/loader"
	"github.com/chazu/classreg/registry"
)

const flagTimeout = "timeout"

func newLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [class...]",
		Short: "Load classes and print their hierarchy",
		Long: `Loads each class through the selected loader and prints its defining
  loader, superclass chain and interfaces. Without arguments the loader's
  configured preload list is used.`,
		Example: `  classreg load com.acme.Widget
  classreg load --loader plugin '[Lcom/acme/Widget;'`,
		RunE:              runLoad,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.Flags().String(flagLoader, "", `loader to load through (default "app", else boot)`)
	cmd.Flags().Duration(flagTimeout, 0, "give up after this long (0 waits forever)")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string) error {
	rs, m, err := buildGraph(cmd)
	if err != nil {
		return err
	}
	defer rs.Close()

	l, err := selectLoader(cmd, rs)
	if err != nil {
		return err
	}
	names := args
	if len(names) == 0 {
		if lc := m.Loader(l.Name()); lc != nil {
			names = lc.Preload
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no classes given and loader %s has no preload list", l.Name())
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout, _ := cmd.Flags().GetDuration(flagTimeout); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	classes, err := rs.Preload(ctx, l, names)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, c := range classes {
		describe(out, rs, c)
	}
	return nil
}

func describe(out io.Writer, rs *loader.Registries, c *registry.Class) {
	fmt.Fprintf(out, "%s (#%d) %s\n", c, c.ID(), c.Flags())
	fmt.Fprintf(out, "  loader:     %s\n", rs.ByIdentity(c.Loader()).Name())
	if c.IsArray() {
		fmt.Fprintf(out, "  dimensions: %d of %s\n", c.Dimensions(), c.Elemental())
		return
	}
	var chain []string
	for s := c.Super(); s != nil; s = s.Super() {
		chain = append(chain, s.String())
	}
	if len(chain) > 0 {
		fmt.Fprintf(out, "  supers:     %s\n", strings.Join(chain, " -> "))
	}
	if ifaces := c.Interfaces(); len(ifaces) > 0 {
		names := make([]string, len(ifaces))
		for i, iface := range ifaces {
			names[i] = iface.String()
		}
		fmt.Fprintf(out, "  interfaces: %s\n", strings.Join(names, ", "))
	}
}
