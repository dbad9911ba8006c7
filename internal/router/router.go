package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/middleware"
	"github.com/portfoliocms/assetsync/internal/modules/handler"
	"github.com/portfoliocms/assetsync/internal/modules/serializer"
	"github.com/portfoliocms/assetsync/internal/telemetry"
)

type RouterDeps struct {
	Config       *config.Config
	DB           *gorm.DB
	Log          *zap.Logger
	AssetHandler *handler.AssetHandler
	FeedHandler  *handler.FeedHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	serializer.SetLogger(d.Log)

	r := gin.New()
	r.Use(gin.Recovery())

	if telemetry.Enabled(d.Config) {
		r.Use(telemetry.GinMiddleware(d.Config.App.Name))
		r.Use(telemetry.TraceIDMiddleware())
	}
	r.Use(middleware.ZapLogger(d.Log))

	// parts above this spill to temp files
	if limit := d.Config.Upload.MaxFileSizeBytes; limit > 0 {
		r.MaxMultipartMemory = limit
	}

	r.GET("/health", func(c *gin.Context) {
		if d.DB != nil {
			sqlDB, err := d.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, serializer.Err(http.StatusServiceUnavailable, "database unavailable", err))
				return
			}
		}
		c.JSON(http.StatusOK, serializer.Response{Msg: "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "pong"}) })

		assets := v1.Group("/assets")
		{
			assets.POST("", d.AssetHandler.UploadAssets)
			assets.GET("", d.AssetHandler.ListAssets)
			assets.PUT("/order", d.AssetHandler.ReorderAssets)
			assets.POST("/compact", d.AssetHandler.CompactAssets)
			assets.GET("/feed", d.FeedHandler.Subscribe)

			assets.GET("/:asset_id", d.AssetHandler.GetAsset)
			assets.GET("/:asset_id/download", d.AssetHandler.DownloadAsset)
			assets.PATCH("/:asset_id", d.AssetHandler.UpdateAsset)
			assets.DELETE("/:asset_id", d.AssetHandler.DeleteAsset)
		}
	}
	return r
}
