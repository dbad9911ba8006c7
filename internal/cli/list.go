package cli

import (
	"context"
	"fmt"

	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/portfoliocms/assetsync/internal/pkg/paging"
	"github.com/spf13/cobra"
)

type listFlags struct {
	category string
	usage    string
	page     int
	pageSize int
	all      bool
}

func newListCmd(o *options) *cobra.Command {
	f := &listFlags{}
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List assets in display order",
		Long: `List assets ordered by their position in the category.

Examples:
  assetctl ls --category image
  assetctl ls --usage resume
  assetctl ls --category file --all --json`,
		Args: cobra.NoArgs,
		RunE: o.run(func(cmd *cobra.Command, app *App, _ []string) error {
			return runList(cmd, app, f, o.asJSON)
		}),
	}
	cmd.Flags().StringVar(&f.category, "category", "", "image or file")
	cmd.Flags().StringVar(&f.usage, "usage", "", "only assets with this usage")
	cmd.Flags().IntVar(&f.page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.pageSize, "page-size", paging.DefaultPageSize, "page size")
	cmd.Flags().BoolVarP(&f.all, "all", "a", false, "fetch every page")
	return cmd
}

func runList(cmd *cobra.Command, app *App, f *listFlags, asJSON bool) error {
	in := service.ListAssetsInput{Usage: f.usage, Params: paging.Params{Page: f.page, PageSize: f.pageSize}}
	if f.category != "" {
		c, err := model.ParseCategory(f.category)
		if err != nil {
			return fmt.Errorf("%w: %q", err, f.category)
		}
		in.Category = &c
	}

	var rows []model.Asset
	if f.all {
		all, err := listAll(cmd.Context(), app.Assets, in)
		if err != nil {
			return err
		}
		rows = all
	} else {
		page, err := app.Assets.List(cmd.Context(), in)
		if err != nil {
			return err
		}
		rows = page.Items
	}

	if asJSON {
		return printJSON(cmd.OutOrStdout(), rows)
	}
	return printAssets(cmd.OutOrStdout(), rows)
}

// listAll walks every page of the filter.
func listAll(ctx context.Context, assets service.AssetService, in service.ListAssetsInput) ([]model.Asset, error) {
	in.Params = paging.Params{Page: 1, PageSize: paging.MaxPageSize}
	var rows []model.Asset
	for {
		page, err := assets.List(ctx, in)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page.Items...)
		if !page.HasMore || len(page.Items) == 0 {
			return rows, nil
		}
		in.Params.Page++
	}
}

// loadCategory returns the full ordered list of a category, sentinel rows included.
func loadCategory(ctx context.Context, assets service.AssetService, c model.Category) ([]model.Asset, error) {
	return listAll(ctx, assets, service.ListAssetsInput{Category: &c})
}
