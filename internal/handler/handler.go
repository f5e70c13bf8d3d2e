// Package handler exposes the canteen API over gin.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"canteen/internal/assets"
	"canteen/internal/auth"
	"canteen/internal/mess"
	"canteen/internal/qr"
)

// PhotoRemover deletes stored photos out of band.
type PhotoRemover interface {
	ScheduleRemoval(ctx context.Context, key string) error
}

// Handler serves every API route.
type Handler struct {
	svc       *mess.Service
	photos    assets.Store
	remover   PhotoRemover
	qr        *qr.Encoder
	admin     auth.Issuer
	maxUpload int64
	log       *zap.Logger
}

// Deps groups what a Handler needs.
type Deps struct {
	Service        *mess.Service
	Photos         assets.Store
	Remover        PhotoRemover
	QR             *qr.Encoder
	Admin          auth.Issuer
	MaxUploadBytes int64
	Log            *zap.Logger
}

// New creates a handler.
func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 15 << 20
	}
	return &Handler{
		svc:       d.Service,
		photos:    d.Photos,
		remover:   d.Remover,
		qr:        d.QR,
		admin:     d.Admin,
		maxUpload: d.MaxUploadBytes,
		log:       d.Log,
	}
}

// fail answers a domain rejection: HTTP 200 with success false.
func fail(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"success": false, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": message})
}

func (h *Handler) internal(c *gin.Context, op string, err error) {
	_ = c.Error(err)
	h.log.Error(op+" failed", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// photoURL resolves a stored photo, logging lookup failures as a missing photo.
func (h *Handler) photoURL(ctx context.Context, key string) *string {
	u, err := h.photos.URL(ctx, key)
	if err != nil {
		h.log.Warn("photo lookup failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	if u == "" {
		return nil
	}
	return &u
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// parseMemberID accepts a JSON number or a numeric string.
func parseMemberID(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		if x != float64(int64(x)) {
			return 0, errors.New("member_id is not an integer")
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, errors.New("member_id missing")
	}
}
