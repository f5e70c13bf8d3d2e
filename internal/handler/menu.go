package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/internal/mess"
)

func (h *Handler) listMenu(c *gin.Context) {
	items, err := h.svc.Menu(c.Request.Context())
	if err != nil {
		h.internal(c, "list menu", err)
		return
	}
	if items == nil {
		items = []mess.MenuItem{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) addMenuItem(c *gin.Context) {
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing fields"})
		return
	}
	_, err := h.svc.AddMenuItem(c.Request.Context(), req.Title, req.Description)
	if errors.Is(err, mess.ErrMissingFields) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing fields"})
		return
	}
	if err != nil {
		h.internal(c, "add menu item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

func (h *Handler) deleteMenuItem(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Invalid menu id"})
		return
	}
	if _, err := h.svc.DeleteMenuItem(c.Request.Context(), id); err != nil {
		h.internal(c, "delete menu item", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
