package main

import (
	"fmt"
	"strings"

	"github.com/mmcdole/sarathi/internal/search"
	"github.com/mmcdole/sarathi/internal/worker"
	"github.com/spf13/cobra"
)

func installCmd() *cobra.Command {
	var activate bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Fetch the configured asset list into a new cache generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cache, closeCache, err := a.openCache(nil)
			if err != nil {
				return err
			}
			defer closeCache()

			interceptor := worker.New(cache, worker.Config{
				Version:     a.cfg.Cache.Version,
				Assets:      a.cfg.Cache.Assets,
				SkipWaiting: activate,
			}, a.logger)

			out := cmd.OutOrStdout()
			err = interceptor.Install(cmd.Context(), func(loaded, total int) {
				fmt.Fprintf(out, "\rFetching assets %d/%d", loaded, total)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}

			if activate {
				fmt.Fprintf(out, "✓ Generation %s is live\n", a.cfg.Cache.Version)
			} else {
				fmt.Fprintf(out, "✓ Generation %s installed (serve activates it when skip_waiting is set, otherwise POST /_worker/activate)\n", a.cfg.Cache.Version)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&activate, "activate", false, "make the generation live and evict older ones")
	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the offline cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "ls [query]",
		Short: "List cached requests of the live generation, fuzzy-filtered by query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			cache, closeCache, err := a.openCache(nil)
			if err != nil {
				return err
			}
			defer closeCache()

			out := cmd.OutOrStdout()
			live, ok := cache.Live()
			if !ok {
				fmt.Fprintln(out, "No live generation (run: sarathi install --activate)")
				return nil
			}

			gens, err := cache.Generations()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Live: %s  Stored: %s  Strategy: %s\n\n", live, strings.Join(gens, ", "), cache.Strategy().Name())

			keys, err := cache.Entries()
			if err != nil {
				return err
			}

			var query string
			if len(args) > 0 {
				query = args[0]
			}
			for _, m := range search.FilterKeys(query, keys) {
				fmt.Fprintln(out, m.Key)
			}
			return nil
		},
	})
	return cmd
}
