package cli

import (
	"fmt"

	"github.com/portfoliocms/assetsync/internal/modules/board"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/spf13/cobra"
)

func newWatchCmd(o *options) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "watch --category <image|file>",
		Short: "Follow a category as rows are deleted elsewhere",
		Long: `Load a category and keep it in sync with the change feed. Rows deleted
by other sessions drop out and the list is printed again.

Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, app *App, _ []string) error {
			c, err := model.ParseCategory(category)
			if err != nil {
				return fmt.Errorf("%w: %q", err, category)
			}
			return runWatch(cmd, app, c)
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "image or file")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runWatch(cmd *cobra.Command, app *App, c model.Category) error {
	ctx := cmd.Context()
	rows, err := loadCategory(ctx, app.Assets, c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	b := board.New(c, rows)
	if err := printAssets(out, b.Snapshot()); err != nil {
		return err
	}
	b.OnChange(func(rows []model.Asset) {
		fmt.Fprintln(out)
		_ = printAssets(out, rows)
	})

	rec := board.NewReconciler(b, app.Feed, app.Log)
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("subscribe to change feed: %w", err)
	}
	defer rec.Stop()

	<-ctx.Done()
	return nil
}
