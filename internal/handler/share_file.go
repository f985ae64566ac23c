package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"FileShare/internal/dto"
	"FileShare/internal/service"
	"FileShare/internal/xerrors"
	"FileShare/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// multipartOverhead is the room left for multipart framing on top of the
// upload cap when the request body is limited.
const multipartOverhead = 1 << 20

// ShareAPI is the share lifecycle as seen by the HTTP layer.
type ShareAPI interface {
	Upload(ctx context.Context, in service.UploadInput) (*service.UploadResult, error)
	Inspect(ctx context.Context, accessKey string) (*service.ShareInfo, error)
	Download(ctx context.Context, accessKey string) (*service.DownloadResult, error)
	Revoke(ctx context.Context, accessKey string) error
}

type ShareHandler struct {
	shares         ShareAPI
	logger         *slog.Logger
	maxUploadBytes int64
}

func NewShareHandler(shares ShareAPI, logger *slog.Logger, maxUploadBytes int64) *ShareHandler {
	return &ShareHandler{shares: shares, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Upload handles POST /api/upload.
func (h *ShareHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	var query dto.UploadQuery
	if err := c.ShouldBindWith(&query, binding.Form); err != nil {
		h.bindError(c, err)
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		h.bindError(c, err)
		return
	}
	if fh.Size > h.maxUploadBytes {
		h.writeError(c, xerrors.E(xerrors.KindPayloadTooLarge, "upload", service.SizeLimitMessage(h.maxUploadBytes)))
		return
	}

	file, err := fh.Open()
	if err != nil {
		h.writeError(c, xerrors.Wrap(xerrors.KindInternal, "upload", err))
		return
	}
	defer file.Close()
	// Read one byte past the cap so oversized bodies are still detected.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		h.writeError(c, xerrors.Wrap(xerrors.KindInternal, "upload", err))
		return
	}

	res, err := h.shares.Upload(c.Request.Context(), service.UploadInput{
		Data:           data,
		DeclaredSize:   fh.Size,
		Filename:       fh.Filename,
		ContentType:    fh.Header.Get("Content-Type"),
		MaxDownloads:   query.MaxDownloadsValue(),
		ExpiresInHours: query.ExpiresInHoursValue(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{
		ID:          res.ID,
		AccessKey:   res.AccessKey,
		Filename:    res.Filename,
		FileSize:    res.FileSize,
		ExpiresAt:   res.ExpiresAt,
		DownloadURL: res.DownloadURL,
	})
}

// Info handles GET /api/info/:accessKey.
func (h *ShareHandler) Info(c *gin.Context) {
	info, err := h.shares.Inspect(c.Request.Context(), c.Param("accessKey"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FileInfoResponse{
		Filename:      info.Filename,
		FileSize:      info.FileSize,
		ContentType:   info.ContentType,
		DownloadCount: info.DownloadCount,
		MaxDownloads:  info.MaxDownloads,
		ExpiresAt:     info.ExpiresAt,
		CreatedAt:     info.CreatedAt,
	})
}

// Download handles GET /api/download/:accessKey.
func (h *ShareHandler) Download(c *gin.Context) {
	res, err := h.shares.Download(c.Request.Context(), c.Param("accessKey"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", contentDisposition(res.Filename))
	c.Header("Content-Length", strconv.FormatInt(res.FileSize, 10))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

// Delete handles DELETE /api/files/:accessKey.
func (h *ShareHandler) Delete(c *gin.Context) {
	if err := h.shares.Revoke(c.Request.Context(), c.Param("accessKey")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Message: "File deleted successfully"})
}

func (h *ShareHandler) bindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		h.writeError(c, xerrors.E(xerrors.KindPayloadTooLarge, "upload", service.SizeLimitMessage(h.maxUploadBytes)))
		return
	}
	if errors.Is(err, http.ErrMissingFile) {
		utils.Fail(c, http.StatusBadRequest, "file is required")
		return
	}
	utils.Fail(c, http.StatusBadRequest, "invalid upload parameters")
}

// contentDisposition quotes an ASCII-safe name and adds an RFC 5987 form for
// names that need it.
func contentDisposition(filename string) string {
	safe := utils.SanitizeHeaderFilename(filename)
	value := fmt.Sprintf(`attachment; filename="%s"`, safe)
	for _, r := range safe {
		if r > 0x7e {
			return value + "; filename*=UTF-8''" + url.PathEscape(safe)
		}
	}
	return value
}
