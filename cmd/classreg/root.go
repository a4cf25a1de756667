package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	"github.com/chazu/classreg/loader"
	"github.com/chazu/classreg/manifest"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("classreg")

const (
	flagDir           = "dir"
	flagVerbose       = "verbose"
	flagLogFile       = "log-file"
	flagClasspath     = "classpath"
	flagBootClasspath = "boot-classpath"
	flagLoader        = "loader"
)

// appLoader is the loader --classpath entries are added to.
const appLoader = "app"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classreg [sub-command]",
		Short: "Load, link and inspect classes through a loader graph",
		Long: `classreg resolves classes through the loader graph declared in
  classreg.toml: a boot loader, a platform loader and any number of
  application loaders, each with a class path of directories and
  SQLite or DuckDB class stores.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: configureLogging,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(flagDir, "", "directory to search for classreg.toml (default: working directory)")
	cmd.PersistentFlags().CountP(flagVerbose, "v", "increase log verbosity")
	cmd.PersistentFlags().String(flagLogFile, "", "log to a file instead of stderr")
	cmd.PersistentFlags().StringSlice(flagClasspath, nil, `extra class path entries for the "app" loader (dir:, sqlite:, duckdb:)`)
	cmd.PersistentFlags().StringSlice(flagBootClasspath, nil, "extra class path entries for the boot loader")

	cmd.AddCommand(newLoadCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newPackCommand())
	cmd.AddCommand(newImportCommand())
	return cmd
}

// configureLogging applies the manifest's [log] section, overridden by
// the command line.
func configureLogging(cmd *cobra.Command, _ []string) error {
	m, err := findManifest(cmd)
	if err != nil {
		return err
	}
	verbosity, path := 0, ""
	if m != nil {
		verbosity, path = m.Log.Verbosity, m.LogFilePath()
	}
	if v, _ := cmd.Flags().GetCount(flagVerbose); v > 0 {
		verbosity = v
	}
	if f, _ := cmd.Flags().GetString(flagLogFile); f != "" {
		path = f
	}
	commonlog.Initialize(verbosity, path)
	return nil
}

func findManifest(cmd *cobra.Command) (*manifest.Manifest, error) {
	dir, _ := cmd.Flags().GetString(flagDir)
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	return manifest.FindAndLoad(dir)
}

// buildGraph loads the manifest, if any, adds command-line class path
// entries, and builds the loader graph.
func buildGraph(cmd *cobra.Command) (*loader.Registries, *manifest.Manifest, error) {
	m, err := findManifest(cmd)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		wd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		m, err = manifest.Parse(nil)
		if err != nil {
			return nil, nil, err
		}
		m.Dir = wd
	}

	boot, _ := cmd.Flags().GetStringSlice(flagBootClasspath)
	extendClasspath(m, loader.BootName, boot)
	app, _ := cmd.Flags().GetStringSlice(flagClasspath)
	extendClasspath(m, appLoader, app)

	rs, err := m.Build()
	if err != nil {
		return nil, nil, err
	}
	log.Debugf("built loader graph with %d loaders", len(rs.Loaders()))
	return rs, m, nil
}

func extendClasspath(m *manifest.Manifest, name string, entries []string) {
	if len(entries) == 0 {
		return
	}
	if lc := m.Loader(name); lc != nil {
		lc.Classpath = append(lc.Classpath, entries...)
		return
	}
	lc := manifest.LoaderConfig{Name: name, Classpath: entries}
	if !manifest.IsBuiltinLoader(name) {
		lc.Kind = "app"
		lc.Parent = loader.PlatformName
	}
	m.Loaders = append(m.Loaders, lc)
}

// selectLoader returns the loader named by --loader, defaulting to "app"
// when it exists and boot otherwise.
func selectLoader(cmd *cobra.Command, rs *loader.Registries) (*loader.Loader, error) {
	name, _ := cmd.Flags().GetString(flagLoader)
	if name == "" {
		if l, ok := rs.Loader(appLoader); ok {
			return l, nil
		}
		return rs.Boot(), nil
	}
	l, ok := rs.Loader(name)
	if !ok {
		return nil, fmt.Errorf("no loader named %q", name)
	}
	return l, nil
}
