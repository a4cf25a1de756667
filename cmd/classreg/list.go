package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/classreg/loader"
)

const flagLoadAll = "load"

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaders and the classes on their class paths",
		Example: `  classreg list
  classreg list --loader app --load`,
		RunE:              runList,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	cmd.Flags().String(flagLoader, "", "only list this loader")
	cmd.Flags().Bool(flagLoadAll, false, "load every listed class and print engine statistics")
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	rs, _, err := buildGraph(cmd)
	if err != nil {
		return err
	}
	defer rs.Close()

	loaders := rs.Loaders()
	if name, _ := cmd.Flags().GetString(flagLoader); name != "" {
		l, ok := rs.Loader(name)
		if !ok {
			return fmt.Errorf("no loader named %q", name)
		}
		loaders = []*loader.Loader{l}
	}
	loadAll, _ := cmd.Flags().GetBool(flagLoadAll)

	out := cmd.OutOrStdout()
	for _, l := range loaders {
		parent := "-"
		if l.Parent() != nil {
			parent = l.Parent().Name()
		}
		fmt.Fprintf(out, "%s (%s, parent %s)\n", l.Name(), l.Kind(), parent)
		for _, src := range l.Sources() {
			fmt.Fprintf(out, "  source %s\n", src.Location())
		}

		names, err := l.Names(cmd.Context())
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintf(out, "  %s\n", n)
		}
		if !loadAll || len(names) == 0 {
			continue
		}
		if _, err := rs.Preload(cmd.Context(), l, names); err != nil {
			return err
		}
		st := l.Engine().Stats()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "  loads\t%d (%d hits)\n", st.LoadRequests, st.LoadHits)
		fmt.Fprintf(tw, "  linked\t%d (%d hits)\n", st.LinkedRequests, st.LinkedHits)
		fmt.Fprintf(tw, "  defined\t%d (+%d hidden)\n", st.Defined, st.HiddenDefined)
		fmt.Fprintf(tw, "  loaded\t%d\n", len(l.Engine().LoadedClasses()))
		tw.Flush()
	}
	return nil
}
