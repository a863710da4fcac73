package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/typecensus/pkg/corpus"
)

// listCommand creates the list command, a dry run of archive selection.
func (c *CLI) listCommand() *cobra.Command {
	var (
		pattern string
		window  int
		stride  int
		paths   bool
	)

	cmd := &cobra.Command{
		Use:   "list [corpus-dir]",
		Short: "Show which archives a run would analyse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Corpus.Dir = args[0]
			}
			set := cmd.Flags().Changed
			if set("pattern") {
				cfg.Corpus.Pattern = pattern
			}
			if set("window") {
				cfg.Corpus.Window = window
			}
			if set("stride") {
				cfg.Corpus.Stride = stride
			}

			archives, err := corpus.Select(cfg.Corpus.Dir, corpus.Options{
				Pattern: cfg.Corpus.Pattern,
				Window:  cfg.Corpus.Window,
				Stride:  cfg.Corpus.Stride,
			})
			if err != nil {
				return err
			}

			for _, a := range archives {
				if paths {
					fmt.Println(a.Path)
					continue
				}
				fmt.Println(a.Name)
			}
			c.Logger.Debug("selected archives",
				"dir", cfg.Corpus.Dir,
				"count", len(archives),
				"window", cfg.Corpus.Window,
				"stride", cfg.Corpus.Stride)
			return nil
		},
	}

	cmd.Flags().StringVar(&pattern, "pattern", "", "glob selecting archives (default *.tgz)")
	cmd.Flags().IntVar(&window, "window", 0, "consider only the first N archives; -1 for all")
	cmd.Flags().IntVar(&stride, "stride", 0, "take every Nth archive of the window")
	cmd.Flags().BoolVar(&paths, "paths", false, "print archive paths instead of package names")

	return cmd
}
