package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
	"clubhub/internal/session"
)

func (h *handler) attendanceRoutes(g *gin.RouterGroup, staff gin.HandlerFunc) {
	a := g.Group("/attendance")
	a.GET("/session/:sessionId", h.sessionAttendance)
	a.GET("/session/:sessionId/history", staff, h.history)
	a.GET("/user/:userId", h.userAttendance)
	a.POST("/mark", staff, h.mark)
	a.POST("/bulk", staff, h.bulkMark)
	a.POST("/checkin/:sessionId", h.checkIn)
	a.POST("/checkout/:sessionId", h.checkOut)
	a.GET("/export/:sessionId", staff, h.export)
	a.GET("/analytics", staff, h.analytics)
}

type bulkRequest struct {
	SessionID  string                 `json:"sessionId" binding:"required"`
	Attendance []attendance.BulkEntry `json:"attendance" binding:"required,min=1,max=1000,dive"`
}

type analyticsQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
}

// bounds parses the range. A date-only end covers that whole day.
func (q analyticsQuery) bounds(loc *time.Location) (from, to *time.Time, err error) {
	if q.StartDate != "" {
		t, err := session.ParseDate(q.StartDate, loc)
		if err != nil {
			return nil, nil, apperr.Validation("startDate: %s", err.Error())
		}
		from = &t
	}
	if q.EndDate != "" {
		t, err := session.ParseDate(q.EndDate, loc)
		if err != nil {
			return nil, nil, apperr.Validation("endDate: %s", err.Error())
		}
		if len(q.EndDate) == len(time.DateOnly) {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func (h *handler) sessionAttendance(c *gin.Context) {
	v, err := h.Attendance.SessionAttendance(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (h *handler) history(c *gin.Context) {
	entries, err := h.Attendance.History(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	if entries == nil {
		entries = []attendance.AuditEntry{}
	}
	ok(c, entries)
}

func (h *handler) userAttendance(c *gin.Context) {
	v, err := h.Attendance.UserAttendance(c.Request.Context(), actor(c), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (h *handler) mark(c *gin.Context) {
	var req attendance.MarkInput
	if !bind(c, &req) {
		return
	}
	rec, err := h.Attendance.Mark(c.Request.Context(), actor(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

func (h *handler) bulkMark(c *gin.Context) {
	var req bulkRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.Attendance.BulkMark(c.Request.Context(), actor(c), req.SessionID, req.Attendance)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (h *handler) checkIn(c *gin.Context) {
	rec, err := h.Attendance.SelfCheckIn(c.Request.Context(), actor(c), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: fmt.Sprintf("checked in as %s", rec.Status), Data: rec})
}

func (h *handler) checkOut(c *gin.Context) {
	rec, err := h.Attendance.CheckOut(c.Request.Context(), actor(c), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rec)
}

// export renders the CSV before writing headers so a failure still gets the
// JSON error envelope.
func (h *handler) export(c *gin.Context) {
	e, err := h.Attendance.ExportSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := e.Write(&buf); err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, e.Filename))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *handler) analytics(c *gin.Context) {
	var q analyticsQuery
	if !bindQuery(c, &q) {
		return
	}
	from, to, err := q.bounds(h.Sessions.Location())
	if err != nil {
		fail(c, err)
		return
	}
	a, err := h.Attendance.Analytics(c.Request.Context(), from, to)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}
