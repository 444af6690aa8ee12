package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"clubhub/internal/apperr"
	"clubhub/internal/paging"
	"clubhub/internal/session"
)

func (h *handler) sessionRoutes(g *gin.RouterGroup, staff gin.HandlerFunc) {
	g.GET("/sessions", h.listSessions)
	g.POST("/sessions", staff, h.createSession)
	g.GET("/sessions/:id", h.getSession)
	g.PUT("/sessions/:id", staff, h.updateSession)
	g.DELETE("/sessions/:id", staff, h.deleteSession)
	g.POST("/sessions/:id/register", h.registerSession)
	g.DELETE("/sessions/:id/register", h.unregisterSession)
}

type sessionQuery struct {
	paging.Page
	Type            session.Type `form:"type" binding:"omitempty,sessiontype"`
	From            string       `form:"from"`
	To              string       `form:"to"`
	Upcoming        bool         `form:"upcoming"`
	IncludeInactive bool         `form:"includeInactive"`
}

// filter turns q into a session filter. Only staff see inactive sessions.
func (q sessionQuery) filter(staff bool, loc *time.Location, now time.Time) (session.Filter, error) {
	f := session.Filter{Type: q.Type, IncludeInactive: q.IncludeInactive && staff}
	if q.From != "" {
		t, err := session.ParseDate(q.From, loc)
		if err != nil {
			return f, apperr.Validation("from: %s", err.Error())
		}
		f.From = &t
	}
	if q.To != "" {
		t, err := session.ParseDate(q.To, loc)
		if err != nil {
			return f, apperr.Validation("to: %s", err.Error())
		}
		f.To = &t
	}
	if q.Upcoming {
		y, m, d := now.In(loc).Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, loc)
		if f.From == nil || f.From.Before(today) {
			f.From = &today
		}
		f.Ascending = true
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, apperr.Validation("to must not be before from")
	}
	return f, nil
}

func (h *handler) listSessions(c *gin.Context) {
	var q sessionQuery
	if !bindQuery(c, &q) {
		return
	}
	f, err := q.filter(actor(c).Role.Staff(), h.Sessions.Location(), time.Now())
	if err != nil {
		fail(c, err)
		return
	}
	sessions, meta, err := h.Sessions.List(c.Request.Context(), f, q.Page)
	if err != nil {
		fail(c, err)
		return
	}
	page(c, sessions, meta)
}

func (h *handler) createSession(c *gin.Context) {
	var req session.CreateInput
	if !bind(c, &req) {
		return
	}
	out, err := h.Sessions.Create(c.Request.Context(), actor(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "session created", out)
}

func (h *handler) getSession(c *gin.Context) {
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !s.IsActive && !actor(c).Role.Staff() {
		fail(c, apperr.NotFound("session not found"))
		return
	}
	ok(c, s)
}

func (h *handler) updateSession(c *gin.Context) {
	var req session.Patch
	if !bind(c, &req) {
		return
	}
	s, err := h.Sessions.Update(c.Request.Context(), actor(c), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func (h *handler) deleteSession(c *gin.Context) {
	s, err := h.Sessions.Delete(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func (h *handler) registerSession(c *gin.Context) {
	s, err := h.Sessions.Register(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}

func (h *handler) unregisterSession(c *gin.Context) {
	s, err := h.Sessions.Unregister(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s)
}
