package handler

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"canteen/internal/assets"
	"canteen/internal/mess"
)

type memberView struct {
	mess.Member
	Photo *string `json:"photo"`
}

func (h *Handler) listMembers(c *gin.Context) {
	members, err := h.svc.ListMembers(c.Request.Context())
	if err != nil {
		h.internal(c, "list members", err)
		return
	}
	out := make([]memberView, 0, len(members))
	for _, m := range members {
		out = append(out, memberView{Member: m, Photo: h.photoURL(c.Request.Context(), assets.MemberKey(m.ID))})
	}
	c.JSON(http.StatusOK, out)
}

type createMemberRequest struct {
	Name         string `json:"name"`
	RollOrID     string `json:"roll_or_id"`
	AllowedSlots string `json:"allowed_slots"`
}

func (h *Handler) createMember(c *gin.Context) {
	var (
		req      createMemberRequest
		photo    *multipart.FileHeader
		photoExt string
	)
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		h.limitBody(c)
		fh, ext, err := h.formPhoto(c)
		switch {
		case err == nil:
			photo, photoExt = fh, ext
		case !errors.Is(err, errNoFile):
			photoError(c, err)
			return
		}
		req.Name = c.PostForm("name")
		req.RollOrID = c.PostForm("roll_or_id")
		req.AllowedSlots = c.PostForm("allowed_slots")
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing fields"})
		return
	}

	id, err := h.svc.CreateMember(c.Request.Context(), mess.NewMember{
		Name:         req.Name,
		RollOrID:     req.RollOrID,
		AllowedSlots: req.AllowedSlots,
	})
	switch {
	case errors.Is(err, mess.ErrMissingFields):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing fields"})
		return
	case errors.Is(err, mess.ErrUnknownSlot):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	case errors.Is(err, mess.ErrDuplicateRoll):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "Roll number already registered"})
		return
	case err != nil:
		h.internal(c, "create member", err)
		return
	}

	if photo != nil {
		if _, err := h.savePhoto(c, assets.MemberKey(id), photo, photoExt); err != nil {
			h.log.Error("save member photo failed", zap.Int64("member_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "member_id": id})
}

func (h *Handler) deleteMember(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid member id"})
		return
	}
	deleted, err := h.svc.DeleteMember(c.Request.Context(), id)
	if err != nil {
		h.internal(c, "delete member", err)
		return
	}
	if deleted && h.remover != nil {
		if err := h.remover.ScheduleRemoval(c.Request.Context(), assets.MemberKey(id)); err != nil {
			h.log.Warn("photo removal not scheduled", zap.Int64("member_id", id), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) resetDevice(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid member id"})
		return
	}
	cleared, err := h.svc.ResetDevice(c.Request.Context(), id)
	if err != nil {
		h.internal(c, "reset device", err)
		return
	}
	if !cleared {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": mess.MsgUnknownMember})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlocked"})
}

func (h *Handler) login(c *gin.Context) {
	res, err := h.svc.Login(c.Request.Context(), c.Query("roll"), c.Query("device_id"))
	if err != nil {
		h.internal(c, "login", err)
		return
	}
	switch {
	case res.Success:
		c.JSON(http.StatusOK, gin.H{"success": true, "member_id": res.MemberID, "name": res.Name, "locked": res.Locked})
	case res.Locked:
		c.JSON(http.StatusOK, gin.H{"success": false, "locked": true, "message": res.Message})
	default:
		fail(c, res.Message)
	}
}

func (h *Handler) messStatus(c *gin.Context) {
	// an unparseable id reads as an unknown member
	id, _ := strconv.ParseInt(c.DefaultQuery("id", "1"), 10, 64)
	st, err := h.svc.Status(c.Request.Context(), id)
	if err != nil {
		h.internal(c, "mess status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) messOverview(c *gin.Context) {
	rows, err := h.svc.Overview(c.Request.Context())
	if err != nil {
		h.internal(c, "mess overview", err)
		return
	}
	if rows == nil {
		rows = []mess.Counters{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) resetMonth(c *gin.Context) {
	days, err := h.svc.ResetMonth(c.Request.Context())
	if err != nil {
		h.internal(c, "reset month", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset_done", "days_in_month": days})
}
