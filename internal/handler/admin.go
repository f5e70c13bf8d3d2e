package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/internal/auth"
)

func (h *Handler) adminLogin(c *gin.Context) {
	if !h.admin.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "admin login disabled"})
		return
	}
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}
	token, exp, err := h.admin.Login(req.Password)
	if errors.Is(err, auth.ErrBadPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.internal(c, "issue admin token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "expires_at": exp.Unix()})
}
