package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/infra/changefeed"
	"github.com/portfoliocms/assetsync/internal/modules/handler"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewRouter_Routes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.App.Name = "assetsync"

	r := NewRouter(RouterDeps{
		Config:       cfg,
		Log:          zap.NewNop(),
		AssetHandler: handler.NewAssetHandler(nil, nil, nil, cfg, zap.NewNop()),
		FeedHandler:  handler.NewFeedHandler(changefeed.NewMemoryFeed(), zap.NewNop()),
	})

	want := map[string]bool{}
	for _, route := range []string{
		"POST /api/v1/assets",
		"GET /api/v1/assets",
		"PUT /api/v1/assets/order",
		"POST /api/v1/assets/compact",
		"GET /api/v1/assets/feed",
		"GET /api/v1/assets/:asset_id",
		"GET /api/v1/assets/:asset_id/download",
		"PATCH /api/v1/assets/:asset_id",
		"DELETE /api/v1/assets/:asset_id",
		"GET /health",
		"GET /api/v1/ping",
	} {
		want[route] = true
	}
	for _, ri := range r.Routes() {
		delete(want, ri.Method+" "+ri.Path)
	}
	assert.Empty(t, want)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
