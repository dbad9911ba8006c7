package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/spf13/cobra"
)

type uploadFlags struct {
	bucket    string
	usage     string
	unordered bool
}

func newUploadCmd(o *options) *cobra.Command {
	f := &uploadFlags{}
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files as one batch",
		Long: `Upload one or more files as a single batch.

Images join the image sequence and everything else joins the file sequence,
in the order given on the command line. Files that fail are reported
individually and do not stop the rest of the batch.

Examples:
  assetctl upload cover.png shot-1.png shot-2.png
  assetctl upload --usage resume CV.pdf
  assetctl upload --unordered --usage avatar me.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: o.run(func(cmd *cobra.Command, app *App, args []string) error {
			return runUpload(cmd, app, f, o.asJSON, args)
		}),
	}
	cmd.Flags().StringVarP(&f.bucket, "bucket", "b", "", "target bucket (default from config)")
	cmd.Flags().StringVarP(&f.usage, "usage", "u", "", "usage annotation stored on every file")
	cmd.Flags().BoolVar(&f.unordered, "unordered", false, "keep the files out of the category ordering")
	return cmd
}

func runUpload(cmd *cobra.Command, app *App, f *uploadFlags, asJSON bool, paths []string) error {
	files, err := readUploadFiles(paths, f.usage, f.unordered)
	if err != nil {
		return err
	}

	res, err := app.Uploads.UploadBatch(cmd.Context(), service.UploadBatchInput{Bucket: f.bucket, Files: files})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		if err := printJSON(out, uploadRows(res)); err != nil {
			return err
		}
	} else if err := printUploadResult(out, res); err != nil {
		return err
	}

	if failed := len(res.Failed()); failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(res.Results))
	}
	return nil
}

func readUploadFiles(paths []string, usage string, unordered bool) ([]service.UploadFile, error) {
	files := make([]service.UploadFile, 0, len(paths))
	for _, p := range paths {
		body, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, service.UploadFile{
			Name:      filepath.Base(p),
			Body:      body,
			Usage:     usage,
			Unordered: unordered,
		})
	}
	return files, nil
}

type uploadRow struct {
	Index    int        `json:"index"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	ID       *uuid.UUID `json:"id,omitempty"`
	FileName string     `json:"file_name,omitempty"`
	Ordering int64      `json:"ordering"`
	Error    string     `json:"error,omitempty"`
}

func uploadRows(res *service.BatchResult) []uploadRow {
	rows := make([]uploadRow, 0, len(res.Results))
	for _, r := range res.Results {
		row := uploadRow{Index: r.Index, Name: r.Name, Category: string(r.Category)}
		if r.Err != nil {
			row.Error = r.Err.Error()
		} else if r.Asset != nil {
			id := r.Asset.ID
			row.ID = &id
			row.FileName = r.Asset.FileName
			row.Ordering = r.Asset.Ordering
		}
		rows = append(rows, row)
	}
	return rows
}

func printUploadResult(w io.Writer, res *service.BatchResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tCATEGORY\tORDER\tRESULT")
	for _, r := range uploadRows(res) {
		result := r.FileName
		order := orderLabel(r.Ordering)
		if r.Error != "" {
			result = "FAILED: " + r.Error
			order = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index+1, r.Name, r.Category, order, result)
	}
	return tw.Flush()
}
