// Package cli implements assetctl, the operator CLI for the asset store.
package cli

import (
	"github.com/portfoliocms/assetsync/internal/bootstrap"
	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/samber/do"
	"go.uber.org/zap"
)

// App is the set of services the commands drive.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Assets  service.AssetService
	Uploads service.UploadService
	Reorder service.ReorderService
	Janitor service.JanitorService
	Feed    changefeed.Subscriber

	close func() error
}

// Close releases the connections opened for the App.
func (a *App) Close() error {
	if a == nil || a.close == nil {
		return nil
	}
	return a.close()
}

// AppFactory builds an App from a config file path. An empty path uses the
// default config search.
type AppFactory func(configPath string) (*App, error)

// NewApp wires an App from the bootstrap container.
func NewApp(configPath string) (*App, error) {
	inj := bootstrap.BuildContainerWith(func() (*config.Config, error) {
		return config.LoadFrom(configPath)
	})

	app, err := appFrom(inj)
	if err != nil {
		_ = bootstrap.Close(inj)
		return nil, err
	}
	app.close = func() error { return bootstrap.Close(inj) }
	return app, nil
}

func appFrom(inj *do.Injector) (*App, error) {
	cfg, err := do.Invoke[*config.Config](inj)
	if err != nil {
		return nil, err
	}
	assets, err := do.Invoke[service.AssetService](inj)
	if err != nil {
		return nil, err
	}
	uploads, err := do.Invoke[service.UploadService](inj)
	if err != nil {
		return nil, err
	}
	reorder, err := do.Invoke[service.ReorderService](inj)
	if err != nil {
		return nil, err
	}
	janitor, err := do.Invoke[service.JanitorService](inj)
	if err != nil {
		return nil, err
	}
	feed, err := do.Invoke[changefeed.Feed](inj)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:  cfg,
		Log:     do.MustInvoke[*zap.Logger](inj),
		Assets:  assets,
		Uploads: uploads,
		Reorder: reorder,
		Janitor: janitor,
		Feed:    feed,
	}, nil
}
