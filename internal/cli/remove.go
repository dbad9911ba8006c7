package cli

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/spf13/cobra"
)

func newRemoveCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>...",
		Aliases: []string{"delete"},
		Short:   "Delete assets",
		Long: `Delete assets by id. The row is removed first and then the stored object.

When the object delete fails the row is still gone; the object is reported
and left for the sweep command.

Examples:
  assetctl rm 1b4e28ba-2fa1-11d2-883f-0016d3cca427`,
		Args: cobra.MinimumNArgs(1),
		RunE: o.run(runRemove),
	}
}

func runRemove(cmd *cobra.Command, app *App, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var errs []error
	for _, id := range ids {
		a, err := app.Assets.Delete(cmd.Context(), id)
		switch {
		case err == nil:
			fmt.Fprintf(out, "deleted %s (%s)\n", a.FileName, id)
		case errors.Is(err, repo.ErrDeleteCompensation) && a != nil:
			fmt.Fprintf(out, "deleted %s (%s), object left in storage\n", a.FileName, id)
			errs = append(errs, err)
		default:
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func parseIDs(args []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(args))
	for _, s := range args {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid asset id %q", s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
