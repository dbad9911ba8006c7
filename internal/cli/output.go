package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bytedance/sonic"
	"github.com/portfoliocms/assetsync/internal/modules/model"
)

func printJSON(w io.Writer, v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printAssets(w io.Writer, rows []model.Asset) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tID\tCATEGORY\tNAME\tUSAGE")
	for _, a := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", orderLabel(a.Ordering), a.ID, a.Category, a.FileName, a.Usage)
	}
	return tw.Flush()
}

func orderLabel(ordering int64) string {
	if ordering == model.SentinelOrdering {
		return "-"
	}
	return fmt.Sprintf("%d", ordering)
}
