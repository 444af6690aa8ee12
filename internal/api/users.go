package api

import (
	"github.com/gin-gonic/gin"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/user"
)

func (h *handler) userRoutes(g *gin.RouterGroup, staff, admin gin.HandlerFunc) {
	g.GET("/users", staff, h.listUsers)
	g.GET("/users/:id", h.getUser)
	g.PUT("/users/:id", h.updateUser)
	g.PUT("/users/:id/role", admin, h.setRole)
	g.DELETE("/users/:id", admin, h.deactivateUser)
}

type userQuery struct {
	paging.Page
	Role   user.Role `form:"role" binding:"omitempty,role"`
	Batch  string    `form:"batch"`
	Active *bool     `form:"active"`
	Search string    `form:"search"`
}

type roleRequest struct {
	Role user.Role `json:"role" binding:"required,role"`
}

func (h *handler) listUsers(c *gin.Context) {
	var q userQuery
	if !bindQuery(c, &q) {
		return
	}
	f := user.Filter{Role: q.Role, Batch: q.Batch, Active: q.Active, Search: q.Search}
	users, meta, err := h.Users.List(c.Request.Context(), actor(c), f, q.Page)
	if err != nil {
		fail(c, err)
		return
	}
	page(c, users, meta)
}

func (h *handler) getUser(c *gin.Context) {
	a, id := actor(c), c.Param("id")
	if a.ID != id && !a.Role.Staff() {
		fail(c, apperr.Forbidden("cannot view another user"))
		return
	}
	u, err := h.Users.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *handler) updateUser(c *gin.Context) {
	var req user.ProfileUpdate
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *handler) setRole(c *gin.Context) {
	var req roleRequest
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.SetRole(c.Request.Context(), actor(c), c.Param("id"), req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}

func (h *handler) deactivateUser(c *gin.Context) {
	u, err := h.Users.Deactivate(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}
