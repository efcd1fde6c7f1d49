package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Travis-Britz/gddns"
	"github.com/Travis-Britz/gddns/mlog"
)

func newClearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache HOSTNAME",
		Short: "Clear the response cache for a host.",
		Long: `Clear the response cache for a host.

This is required after a fatal error (for example bad credentials) has been fixed.
A running daemon picks up the change before its next update pass.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hostname := args[0]
			dir, err := cacheDirWithoutHosts()
			if err != nil {
				return err
			}
			cache := gddns.NewResponseCache(dir)
			if err := cache.Clear(hostname); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("failed to clear cache for %s: nothing is cached in %s", hostname, dir)
				}
				return fmt.Errorf("failed to clear cache for %s: %w", hostname, err)
			}
			mlog.L().Info("cache cleared", zap.String("hostname", hostname), zap.String("dir", dir))
			return nil
		},
	}
}

type statusEntry struct {
	Hostname string    `yaml:"hostname"`
	Outcome  string    `yaml:"outcome,omitempty"`
	Recorded time.Time `yaml:"recorded,omitempty"`
	Age      string    `yaml:"age,omitempty"`
	Error    string    `yaml:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var asYAML bool
	c := &cobra.Command{
		Use:   "status",
		Short: "Show the cached outcome of every host.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cacheDirWithoutHosts()
			if err != nil {
				return err
			}
			entries, err := cacheStatus(gddns.NewResponseCache(dir), time.Now())
			if err != nil {
				return err
			}
			if asYAML {
				return yaml.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}
			return printStatus(cmd.OutOrStdout(), entries)
		},
	}
	c.Flags().BoolVar(&asYAML, "yaml", false, "Print YAML instead of a table")
	return c
}

func cacheStatus(cache *gddns.ResponseCache, now time.Time) ([]statusEntry, error) {
	names, err := cache.Hostnames()
	if err != nil {
		return nil, err
	}
	entries := make([]statusEntry, 0, len(names))
	for _, name := range names {
		se := statusEntry{Hostname: name}
		entry, found, err := cache.Get(name)
		switch {
		case err != nil:
			se.Error = err.Error()
		case found:
			se.Outcome = entry.Outcome.String()
			se.Recorded = entry.Time
			se.Age = now.Sub(entry.Time).Round(time.Second).String()
		default:
			continue // removed since listing
		}
		entries = append(entries, se)
	}
	return entries, nil
}

func printStatus(w io.Writer, entries []statusEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOSTNAME\tOUTCOME\tAGE")
	for _, se := range entries {
		if se.Error != "" {
			fmt.Fprintf(tw, "%s\t%s\t-\n", se.Hostname, se.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", se.Hostname, se.Outcome, se.Age)
	}
	return tw.Flush()
}
