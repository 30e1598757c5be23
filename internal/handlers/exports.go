package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"drip-admin-console/internal/cache"
	"drip-admin-console/internal/entities"
	"drip-admin-console/internal/models"
	"drip-admin-console/internal/notify"

	"github.com/gorilla/mux"
	"golang.org/x/sync/singleflight"
)

// Exporter downloads a binary export from the backend
type Exporter interface {
	Export(ctx context.Context, x entities.Export) (*models.Download, error)
}

// ExportHandler streams exports and exposes the notification feed
type ExportHandler struct {
	registry *entities.Registry
	exporter Exporter
	cache    *cache.TTLCache[*models.Download]
	group    singleflight.Group
	feed     *notify.Feed
}

// NewExportHandler creates an export handler; downloads are reused for the
// lifetime of downloads cache entries
func NewExportHandler(registry *entities.Registry, exporter Exporter, downloads *cache.TTLCache[*models.Download], feed *notify.Feed) *ExportHandler {
	return &ExportHandler{
		registry: registry,
		exporter: exporter,
		cache:    downloads,
		feed:     feed,
	}
}

// Export handles GET /v1/exports/{kind}
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	export, err := h.registry.Export(mux.Vars(r)["kind"])
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	download, err := h.download(r.Context(), export)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Debug("Export request abandoned by client", "kind", export.Kind)
			return
		}
		h.feed.Error("export", export.Kind, err)
		writeDomainError(w, r, err)
		return
	}
	h.feed.Success("export", export.Kind, fmt.Sprintf("%s downloaded", download.Filename))

	contentType := download.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(download.Data); err != nil {
		slog.Warn("Failed to stream export", "kind", export.Kind, "error", err)
	}
}

// download collapses concurrent requests for the same export into one call.
// The shared call outlives any single caller; a caller that goes away stops
// waiting without cancelling the download for the others.
func (h *ExportHandler) download(ctx context.Context, export entities.Export) (*models.Download, error) {
	if cached, ok := h.cache.Get(export.Kind); ok {
		slog.Debug("Export served from cache", "kind", export.Kind)
		return cached, nil
	}

	sharedCtx := context.WithoutCancel(ctx)
	ch := h.group.DoChan(export.Kind, func() (interface{}, error) {
		d, err := h.exporter.Export(sharedCtx, export)
		if err != nil {
			return nil, err
		}
		h.cache.Set(export.Kind, d)
		return d, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	download := res.Val.(*models.Download)
	slog.Info("Export downloaded",
		"kind", export.Kind,
		"filename", download.Filename,
		"bytes", len(download.Data),
		"shared", res.Shared)
	return download, nil
}

// Notifications handles GET /v1/notifications
func (h *ExportHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"notifications": h.feed.Recent(),
	})
}
