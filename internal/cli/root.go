package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	asJSON     bool
	factory    AppFactory
}

// NewRootCmd builds the assetctl command tree. Every subcommand builds its
// App through factory and closes it when done.
func NewRootCmd(factory AppFactory) *cobra.Command {
	o := &options{factory: factory}

	root := &cobra.Command{
		Use:   "assetctl",
		Short: "Manage portfolio assets",
		Long: `assetctl uploads, lists, deletes and reorders portfolio assets.

It talks to the same database, object storage and change feed as the API
server, using the same config.yaml and ASSETSYNC_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "path to config.yaml")
	root.PersistentFlags().BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")

	root.AddCommand(
		newUploadCmd(o),
		newListCmd(o),
		newRemoveCmd(o),
		newReorderCmd(o),
		newCompactCmd(o),
		newWatchCmd(o),
		newSweepCmd(o),
	)
	return root
}

type runFunc func(cmd *cobra.Command, app *App, args []string) error

func (o *options) run(fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := o.factory(o.configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer func() { _ = app.Close() }()
		return fn(cmd, app, args)
	}
}
