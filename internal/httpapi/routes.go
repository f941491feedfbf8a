// Package httpapi exposes the form directory and the admin menu over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/formcache"
	"github.com/unkn0wn-root/formcache/directory"
	"github.com/unkn0wn-root/formcache/menu"
)

// Directory is the part of *directory.Directory the routes use.
type Directory interface {
	Forms(ctx context.Context) directory.FormDirectory
	Refresh(ctx context.Context) error
	Expiry(ctx context.Context) (time.Time, bool)
}

type Handler struct {
	dir   Directory
	menus *menu.Builder
	log   formcache.Logger
}

func NewHandler(dir Directory, menus *menu.Builder, log formcache.Logger) *Handler {
	if log == nil {
		log = formcache.NopLogger{}
	}
	return &Handler{dir: dir, menus: menus, log: log}
}

// Register mounts the routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	api := r.Group("/api/v1")
	{
		api.GET("/forms", h.listForms)
		api.POST("/forms/refresh", h.refreshForms)
		api.GET("/menu", h.adminMenu)
	}
}

// NewRouter returns a gin engine with recovery and the formcache routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.Register(r)
	return r
}

type formsResponse struct {
	Data      directory.FormDirectory `json:"data"`
	ExpiresAt *time.Time              `json:"expires_at,omitempty"`
}

func (h *Handler) listForms(c *gin.Context) {
	ctx := c.Request.Context()
	forms := h.dir.Forms(ctx)
	if forms == nil {
		forms = directory.FormDirectory{}
	}
	resp := formsResponse{Data: forms}
	if at, ok := h.dir.Expiry(ctx); ok && !at.IsZero() {
		resp.ExpiresAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) refreshForms(c *gin.Context) {
	if err := h.dir.Refresh(c.Request.Context()); err != nil {
		h.log.Error("form refresh failed", formcache.Fields{"err": err})
		c.JSON(http.StatusInternalServerError, gin.H{"message": "refresh failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) adminMenu(c *gin.Context) {
	if h.menus == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "menu not configured"})
		return
	}
	c.JSON(http.StatusOK, h.menus.Build(c.Request.Context(), nil))
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
