package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"canteen/internal/assets"
	"canteen/internal/mess"
)

const logPageSize = 200

func (h *Handler) currentSlot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"slot": h.svc.CurrentSlot()})
}

type validateRequest struct {
	Token    string `json:"token"`
	MemberID any    `json:"member_id"`
}

func (h *Handler) validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, mess.MsgMissingData)
		return
	}
	memberID, err := parseMemberID(req.MemberID)
	if err != nil {
		badRequest(c, mess.MsgMissingData)
		return
	}

	res, err := h.svc.Validate(c.Request.Context(), req.Token, memberID)
	if errors.Is(err, mess.ErrMissingData) {
		badRequest(c, mess.MsgMissingData)
		return
	}
	if err != nil {
		h.internal(c, "validate", err)
		return
	}
	if !res.Success {
		fail(c, res.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    res.Name,
		"photo":   h.photoURL(c.Request.Context(), assets.MemberKey(res.MemberID)),
	})
}

func (h *Handler) slotQR(c *gin.Context) {
	token, slotName, err := h.svc.CurrentSlotToken(c.Request.Context())
	if err != nil {
		h.internal(c, "slot token", err)
		return
	}
	img, err := h.qr.DataURL(token)
	if err != nil {
		h.internal(c, "render qr", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"qr": img, "slot": slotName})
}

type memberQR struct {
	Slot   string `json:"slot"`
	QRData string `json:"qr_data"`
}

func (h *Handler) memberQRs(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusOK, []memberQR{})
		return
	}
	tokens, err := h.svc.MemberTokens(c.Request.Context(), id)
	if err != nil {
		h.internal(c, "member tokens", err)
		return
	}
	out := make([]memberQR, 0, len(tokens))
	for _, t := range tokens {
		img, err := h.qr.DataURL(t.Token)
		if err != nil {
			h.internal(c, "render qr", err)
			return
		}
		out = append(out, memberQR{Slot: t.Slot, QRData: img})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) generateAll(c *gin.Context) {
	n, err := h.svc.GenerateAll(c.Request.Context())
	if err != nil {
		h.internal(c, "generate all", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Generated " + strconv.Itoa(n) + " QR tokens", "count": n})
}

func (h *Handler) logs(c *gin.Context) {
	entries, err := h.svc.RecentScans(c.Request.Context(), logPageSize)
	if err != nil {
		h.internal(c, "recent scans", err)
		return
	}
	if entries == nil {
		entries = []mess.LogEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) exportLogs(c *gin.Context) {
	csv, n, err := h.svc.ExportLogs(c.Request.Context())
	if err != nil {
		h.internal(c, "export logs", err)
		return
	}
	h.log.Info("scan log drained", zap.Int("rows", n), zap.String("request_id", c.GetString("request_id")))
	c.Header("Content-Disposition", "attachment; filename=scan_logs.csv")
	c.Data(http.StatusOK, "text/csv", csv)
}
