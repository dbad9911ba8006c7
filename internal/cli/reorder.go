package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/portfoliocms/assetsync/internal/modules/board"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/spf13/cobra"
)

type reorderFlags struct {
	category string
	move     string
}

func newReorderCmd(o *options) *cobra.Command {
	f := &reorderFlags{}
	cmd := &cobra.Command{
		Use:   "reorder --category <image|file> (<id>... | --move <from>:<to>)",
		Short: "Change the display order of a category",
		Long: `Change the display order of a category.

Either pass every ordered id of the category in the new order, or move a
single row with --move using 1-based positions as shown by 'assetctl ls'.
If the new order cannot be saved, nothing changes.

Examples:
  assetctl reorder --category image --move 3:1
  assetctl reorder --category file <id-b> <id-a> <id-c>`,
		RunE: o.run(func(cmd *cobra.Command, app *App, args []string) error {
			return runReorder(cmd, app, f, args)
		}),
	}
	cmd.Flags().StringVar(&f.category, "category", "", "image or file")
	cmd.Flags().StringVar(&f.move, "move", "", "move one row, as <from>:<to>")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func runReorder(cmd *cobra.Command, app *App, f *reorderFlags, args []string) error {
	c, err := model.ParseCategory(f.category)
	if err != nil {
		return fmt.Errorf("%w: %q", err, f.category)
	}
	if (f.move == "") == (len(args) == 0) {
		return fmt.Errorf("pass either ids or --move")
	}

	rows, err := loadCategory(cmd.Context(), app.Assets, c)
	if err != nil {
		return err
	}
	b := board.New(c, rows)
	ctl := board.NewReorderController(b, app.Reorder, app.Log)

	if f.move != "" {
		from, to, err := parseMove(f.move)
		if err != nil {
			return err
		}
		err = ctl.Move(cmd.Context(), from-1, to-1)
		if err != nil {
			return err
		}
	} else {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if err := ctl.Apply(cmd.Context(), ids); err != nil {
			return err
		}
	}
	return printAssets(cmd.OutOrStdout(), b.Snapshot())
}

// parseMove reads "<from>:<to>" with 1-based positions.
func parseMove(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid move %q, want <from>:<to>", s)
	}
	from, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil || from < 1 {
		return 0, 0, fmt.Errorf("invalid move source %q", a)
	}
	to, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil || to < 1 {
		return 0, 0, fmt.Errorf("invalid move target %q", b)
	}
	return from, to, nil
}

func newCompactCmd(o *options) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "compact --category <image|file>",
		Short: "Renumber a category to 1..N",
		Long: `Renumber the ordered rows of a category to 1..N, closing gaps and
resolving duplicate positions while keeping their relative order.`,
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, app *App, _ []string) error {
			c, err := model.ParseCategory(category)
			if err != nil {
				return fmt.Errorf("%w: %q", err, category)
			}
			n, err := app.Reorder.Compact(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows renumbered\n", n)
			return nil
		}),
	}
	cmd.Flags().StringVar(&category, "category", "", "image or file")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
