package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/portfoliocms/assetsync/internal/config"
	"github.com/portfoliocms/assetsync/internal/modules/model"
	"github.com/portfoliocms/assetsync/internal/modules/repo"
	"github.com/portfoliocms/assetsync/internal/modules/serializer"
	"github.com/portfoliocms/assetsync/internal/modules/service"
	"github.com/portfoliocms/assetsync/internal/pkg/paging"
	"github.com/portfoliocms/assetsync/internal/pkg/utils/mime"
	"go.uber.org/zap"
)

type AssetHandler struct {
	assets  service.AssetService
	uploads service.UploadService
	reorder service.ReorderService
	cfg     *config.Config
	log     *zap.Logger
}

func NewAssetHandler(assets service.AssetService, uploads service.UploadService, reorder service.ReorderService, cfg *config.Config, log *zap.Logger) *AssetHandler {
	return &AssetHandler{assets: assets, uploads: uploads, reorder: reorder, cfg: cfg, log: log}
}

type UploadAssetsReq struct {
	Bucket    string `form:"bucket" json:"bucket" example:"assets"`
	Usage     string `form:"usage" json:"usage" example:"Certificate"`
	Unordered bool   `form:"unordered,default=false" json:"unordered" example:"false"`
}

type UploadResultItem struct {
	Index    int            `json:"index"`
	Name     string         `json:"name"`
	Category model.Category `json:"category,omitempty"`
	Asset    *model.Asset   `json:"asset,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// UploadAssets godoc
//
//	@Summary		Upload assets
//	@Description	Upload one or more files. Each file is stored and recorded independently; the response lists the outcome per file. 201 when all succeed, 207 when some fail, 502 when none succeed.
//	@Tags			asset
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			files		formData	file	true	"Files to upload"
//	@Param			bucket		formData	string	false	"Target bucket, defaults to the configured bucket"
//	@Param			usage		formData	string	false	"Usage annotation stored on every asset"
//	@Param			unordered	formData	bool	false	"Store outside the category ordering"
//	@Success		201	{object}	serializer.Response{data=[]handler.UploadResultItem}
//	@Success		207	{object}	serializer.Response{data=[]handler.UploadResultItem}
//	@Router			/assets [post]
func (h *AssetHandler) UploadAssets(c *gin.Context) {
	req := UploadAssetsReq{}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("multipart form is required", err))
		return
	}
	headers := formFiles(form)
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("at least one file is required", nil))
		return
	}

	files, err := h.readFiles(headers, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr(err.Error(), err))
		return
	}

	res, err := h.uploads.UploadBatch(c.Request.Context(), service.UploadBatchInput{Bucket: req.Bucket, Files: files})
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	items := make([]UploadResultItem, len(res.Results))
	for i, r := range res.Results {
		items[i] = UploadResultItem{Index: r.Index, Name: r.Name, Category: r.Category, Asset: r.Asset}
		if r.Err != nil {
			items[i].Error = r.Err.Error()
		}
	}

	failed := len(res.Failed())
	switch {
	case failed == 0:
		c.JSON(http.StatusCreated, serializer.Response{Data: items})
	case failed < len(items):
		c.JSON(http.StatusMultiStatus, serializer.Response{
			Code: http.StatusMultiStatus,
			Data: items,
			Msg:  fmt.Sprintf("%d of %d files failed", failed, len(items)),
		})
	default:
		c.JSON(http.StatusBadGateway, serializer.Response{
			Code: http.StatusBadGateway,
			Data: items,
			Msg:  "all files failed",
		})
	}
}

// formFiles collects the parts sent as files or files[] into a new slice.
func formFiles(form *multipart.Form) []*multipart.FileHeader {
	return slices.Concat(form.File["files"], form.File["files[]"])
}

// readFiles loads every part and applies the acceptance limits. Any
// violation rejects the whole request before anything is stored.
func (h *AssetHandler) readFiles(headers []*multipart.FileHeader, req UploadAssetsReq) ([]service.UploadFile, error) {
	limits := h.cfg.Upload
	files := make([]service.UploadFile, 0, len(headers))
	images, others := 0, 0

	for _, fh := range headers {
		if limits.MaxFileSizeBytes > 0 && fh.Size > limits.MaxFileSizeBytes {
			return nil, fmt.Errorf("file %q exceeds the %d byte limit", fh.Filename, limits.MaxFileSizeBytes)
		}
		body, err := readPart(fh)
		if err != nil {
			return nil, fmt.Errorf("read file %q: %w", fh.Filename, err)
		}

		declared := fh.Header.Get("Content-Type")
		if model.CategoryFromMIME(mime.Detect(body, fh.Filename, declared)) == model.CategoryImage {
			images++
		} else {
			others++
		}

		files = append(files, service.UploadFile{
			Name:      fh.Filename,
			MIME:      declared,
			Body:      body,
			Usage:     req.Usage,
			Unordered: req.Unordered,
		})
	}

	if limits.MaxImages > 0 && images > limits.MaxImages {
		return nil, fmt.Errorf("at most %d images per upload, got %d", limits.MaxImages, images)
	}
	if limits.MaxFiles > 0 && others > limits.MaxFiles {
		return nil, fmt.Errorf("at most %d files per upload, got %d", limits.MaxFiles, others)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type ListAssetsReq struct {
	Category string `form:"category" json:"category" binding:"omitempty,oneof=image file" example:"image"`
	Usage    string `form:"usage" json:"usage" example:"Certificate"`
	IDs      string `form:"ids" json:"ids" example:"123e4567-e89b-12d3-a456-426614174000,223e4567-e89b-12d3-a456-426614174000"`
	Page     int    `form:"page,default=1" json:"page" binding:"min=1" example:"1"`
	PageSize int    `form:"page_size,default=20" json:"page_size" binding:"min=1,max=100" example:"20"`
}

// ListAssets godoc
//
//	@Summary		List assets
//	@Description	List assets in display order, optionally filtered by category, usage or id list
//	@Tags			asset
//	@Produce		json
//	@Param			category	query	string	false	"image or file"
//	@Param			usage		query	string	false	"Usage annotation"
//	@Param			ids			query	string	false	"Comma separated asset ids"
//	@Param			page		query	int		false	"1-based page"	default(1)
//	@Param			page_size	query	int		false	"Page size"		default(20)
//	@Success		200	{object}	serializer.Response{data=paging.Page[model.Asset]}
//	@Router			/assets [get]
func (h *AssetHandler) ListAssets(c *gin.Context) {
	req := ListAssetsReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	in := service.ListAssetsInput{
		Usage:  req.Usage,
		Params: paging.Params{Page: req.Page, PageSize: req.PageSize},
	}
	if req.Category != "" {
		cat, err := model.ParseCategory(req.Category)
		if err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
			return
		}
		in.Category = &cat
	}
	ids, err := parseIDList(req.IDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid ids", err))
		return
	}
	in.IDs = ids

	page, err := h.assets.List(c.Request.Context(), in)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: page})
}

// GetAsset godoc
//
//	@Summary		Get asset
//	@Tags			asset
//	@Produce		json
//	@Param			asset_id	path	string	true	"Asset ID"	Format(uuid)
//	@Success		200	{object}	serializer.Response{data=model.Asset}
//	@Router			/assets/{asset_id} [get]
func (h *AssetHandler) GetAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	a, err := h.assets.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: a})
}

type DownloadAssetReq struct {
	Redirect bool `form:"redirect,default=false" json:"redirect" example:"false"`
}

// DownloadAsset godoc
//
//	@Summary		Download asset
//	@Description	Stream the stored object, or redirect to a presigned URL with redirect=true
//	@Tags			asset
//	@Produce		octet-stream
//	@Param			asset_id	path	string	true	"Asset ID"	Format(uuid)
//	@Param			redirect	query	bool	false	"Redirect to a presigned URL"
//	@Success		200
//	@Success		307
//	@Router			/assets/{asset_id}/download [get]
func (h *AssetHandler) DownloadAsset(c *gin.Context) {
	req := DownloadAssetReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	id, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	if req.Redirect {
		url, err := h.assets.PresignDownload(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Redirect(http.StatusTemporaryRedirect, url)
		return
	}

	body, a, err := h.assets.Download(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
	c.Data(http.StatusOK, mime.Detect(body, a.FileName, ""), body)
}

type UpdateAssetReq struct {
	FileName *string `json:"file_name" example:"cv_1700000000000.pdf"`
	Usage    *string `json:"usage" example:"Certificate"`
}

// UpdateAsset godoc
//
//	@Summary		Update asset metadata
//	@Description	Change the file name or usage annotation. Ordering is changed through the order endpoint only.
//	@Tags			asset
//	@Accept			json
//	@Produce		json
//	@Param			asset_id	path	string					true	"Asset ID"	Format(uuid)
//	@Param			payload		body	handler.UpdateAssetReq	true	"Fields to change"
//	@Success		200	{object}	serializer.Response{data=model.Asset}
//	@Router			/assets/{asset_id} [patch]
func (h *AssetHandler) UpdateAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	req := UpdateAssetReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	a, err := h.assets.UpdateMetadata(c.Request.Context(), id, model.MetadataFields{FileName: req.FileName, Usage: req.Usage})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: a})
}

// DeleteAsset godoc
//
//	@Summary		Delete asset
//	@Description	Delete the row, then the stored object. 502 with the deleted row when only the object removal failed.
//	@Tags			asset
//	@Produce		json
//	@Param			asset_id	path	string	true	"Asset ID"	Format(uuid)
//	@Success		200	{object}	serializer.Response{data=model.Asset}
//	@Router			/assets/{asset_id} [delete]
func (h *AssetHandler) DeleteAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	a, err := h.assets.Delete(c.Request.Context(), id)
	if err != nil && errors.Is(err, repo.ErrDeleteCompensation) {
		h.log.Warn("asset row deleted, object left behind", zap.String("id", id.String()), zap.Error(err))
		res := serializer.Err(http.StatusBadGateway, "asset deleted, storage object removal failed", err)
		res.Data = a
		c.JSON(http.StatusBadGateway, res)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: a})
}

type ReorderAssetsReq struct {
	Category string   `json:"category" binding:"required,oneof=image file" example:"image"`
	IDs      []string `json:"ids" binding:"required" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// ReorderAssets godoc
//
//	@Summary		Reorder a category
//	@Description	ids is the complete new order of the category's ordered assets; each gets its 1-based index
//	@Tags			asset
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	handler.ReorderAssetsReq	true	"New order"
//	@Success		200	{object}	serializer.Response{}
//	@Router			/assets/order [put]
func (h *AssetHandler) ReorderAssets(c *gin.Context) {
	req := ReorderAssetsReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	cat, err := model.ParseCategory(req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, serializer.ParamErr("invalid ids", err))
			return
		}
		ids = append(ids, id)
	}

	if err := h.reorder.Persist(c.Request.Context(), cat, ids); err != nil {
		var rerr *service.ReorderError
		if errors.As(err, &rerr) {
			failed := make([]string, 0, len(rerr.Failed))
			for id := range rerr.Failed {
				failed = append(failed, id.String())
			}
			res := serializer.Err(http.StatusInternalServerError, "reorder partially failed", err)
			res.Data = gin.H{"failed": failed}
			c.JSON(http.StatusInternalServerError, res)
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{})
}

type CompactAssetsReq struct {
	Category string `json:"category" binding:"required,oneof=image file" example:"image"`
}

// CompactAssets godoc
//
//	@Summary		Compact a category
//	@Description	Renumber the category's ordered assets to 1..N, repairing gaps and duplicates
//	@Tags			asset
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	handler.CompactAssetsReq	true	"Category"
//	@Success		200	{object}	serializer.Response{}
//	@Router			/assets/compact [post]
func (h *AssetHandler) CompactAssets(c *gin.Context) {
	req := CompactAssetsReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	cat, err := model.ParseCategory(req.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	changed, err := h.reorder.Compact(c.Request.Context(), cat)
	if err != nil {
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: gin.H{"changed": changed}})
}

// fail maps service errors to status codes.
func (h *AssetHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrAssetNotFound):
		c.JSON(http.StatusNotFound, serializer.NotFoundErr("asset not found", err))
	case service.IsMismatch(err):
		c.JSON(http.StatusConflict, serializer.Err(http.StatusConflict, "order is stale, reload and retry", err))
	case errors.Is(err, service.ErrDuplicateIDs),
		errors.Is(err, service.ErrEmptyMetadata),
		errors.Is(err, service.ErrInvalidFileName):
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
	default:
		c.JSON(http.StatusInternalServerError, serializer.DBErr("", err))
	}
}

func parseIDList(raw string) ([]uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := uuid.Parse(p)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
