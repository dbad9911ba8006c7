package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(o *options) *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stored objects no asset points at",
		Long: `Delete objects under images/ and files/ that no asset row references.
Objects younger than janitor.grace_sec are kept.`,
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, app *App, _ []string) error {
			if bucket == "" {
				bucket = app.Config.S3.Bucket
			}
			rep, err := app.Janitor.SweepOrphans(cmd.Context(), bucket)
			if err != nil {
				return err
			}
			if o.asJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			out := cmd.OutOrStdout()
			for _, key := range rep.Deleted {
				fmt.Fprintf(out, "deleted %s\n", key)
			}
			for _, key := range rep.Failed {
				fmt.Fprintf(out, "failed  %s\n", key)
			}
			fmt.Fprintf(out, "%d scanned, %d deleted, %d failed\n", rep.Scanned, len(rep.Deleted), len(rep.Failed))
			if len(rep.Failed) > 0 {
				return fmt.Errorf("%d objects could not be deleted", len(rep.Failed))
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&bucket, "bucket", "b", "", "bucket to sweep (default from config)")
	return cmd
}
