package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/typecensus/pkg/errors"
	"github.com/matzehuels/typecensus/pkg/integrations/npm"
)

// probeCommand creates the probe command.
func (c *CLI) probeCommand() *cobra.Command {
	var (
		noCache bool
		details bool
	)

	cmd := &cobra.Command{
		Use:   "probe <dependency>...",
		Short: "Check whether dependencies have published @types packages",
		Example: `  typecensus probe lodash @babel/core express
  typecensus probe react --details`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := errors.ValidateNpmPackageName(name); err != nil {
					return err
				}
			}

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			locator, probeCache, err := newLocator(cfg, noCache)
			if err != nil {
				return errors.Wrap(errors.ErrCodeInvalidConfig, err, "open probe cache")
			}
			defer probeCache.Close()

			failures := 0
			for _, name := range args {
				if err := c.probeOne(cmd.Context(), locator, name, details); err != nil {
					if stderrors.Is(err, context.Canceled) {
						return err
					}
					failures++
					printError("%s: %s", name, errors.UserMessage(err))
				}
			}
			if failures > 0 {
				return errors.New(errors.ErrCodeNetwork, "%d of %d probes failed", failures, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the probe cache")
	cmd.Flags().BoolVar(&details, "details", false, "fetch metadata of declaration packages that exist")

	return cmd
}

func (c *CLI) probeOne(ctx context.Context, locator *npm.TypesLocator, name string, details bool) error {
	spinner := newProbeSpinner(ctx, name, locator.TypesPackage(name))
	spinner.Start()
	probe, err := locator.Lookup(ctx, name)
	if err != nil {
		spinner.Stop()
		if spinner.Interrupted() {
			return ctx.Err()
		}
		return err
	}
	spinner.finish(probe)

	if !probe.Exists || !details {
		return nil
	}
	info, err := locator.FetchPackage(ctx, probe.Package)
	if err != nil {
		return err
	}
	printKeyValue("  version", info.Version)
	if info.License != "" {
		printKeyValue("  license", info.License)
	}
	printKeyValue("  versions", fmt.Sprint(info.Versions))
	if info.Deprecated != "" {
		printWarning("deprecated: %s", info.Deprecated)
	}
	c.Logger.Debug("declaration package", "name", info.Name, "description", info.Description)
	return nil
}
