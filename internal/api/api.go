// Package api exposes the club services over HTTP under /api/v1.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clubhub/internal/apperr"
	"clubhub/internal/attendance"
	"clubhub/internal/auth"
	"clubhub/internal/cloudinary"
	"clubhub/internal/dashboard"
	"clubhub/internal/httpmiddleware"
	"clubhub/internal/logging"
	"clubhub/internal/paging"
	"clubhub/internal/session"
	"clubhub/internal/user"
)

// Uploader stores media files. *cloudinary.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, filename string, rt cloudinary.ResourceType) (*cloudinary.UploadResult, error)
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the services the handlers call.
type Deps struct {
	Signer     *auth.Signer
	Users      *user.Service
	Sessions   *session.Service
	Attendance *attendance.Service
	Dashboard  *dashboard.Service
	// Uploader is nil when media uploads are not configured.
	Uploader Uploader
	// Store must answer for the API to report healthy. Others are reported
	// but do not fail the check.
	Store  HealthCheck
	Others map[string]HealthCheck

	Limiter     httpmiddleware.Limiter
	CORSOrigins []string
}

type handler struct {
	Deps
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	registerValidators()
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Logger("/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)
	r.NoRoute(func(c *gin.Context) { fail(c, apperr.NotFound("route not found")) })

	v1 := r.Group("/api/v1")
	h.authRoutes(v1)

	authed := v1.Group("", auth.Authenticate(d.Signer))
	staff := auth.RequireRole(user.RoleTeacher, user.RoleAdmin)
	admin := auth.RequireRole(user.RoleAdmin)

	authed.GET("/auth/me", h.me)
	h.userRoutes(authed, staff, admin)
	h.sessionRoutes(authed, staff)
	h.attendanceRoutes(authed, staff)
	authed.GET("/dashboard", h.dashboard)
	authed.POST("/uploads", staff, h.upload)
	return r
}

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message,omitempty"`
	Data       any          `json:"data,omitempty"`
	Pagination *paging.Meta `json:"pagination,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func created(c *gin.Context, message string, data any) {
	c.JSON(http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

func page(c *gin.Context, data any, meta paging.Meta) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data, Pagination: &meta})
}

// fail maps err to its status and writes the error envelope. Unexpected
// errors are logged and hidden from the client.
func fail(c *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err, "internal server error")
	}
	if ae.Kind == apperr.KindInternal {
		logging.Ctx(c.Request.Context()).Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, envelope{Message: "internal server error"})
		return
	}
	c.AbortWithStatusJSON(ae.Kind.Status(), envelope{Message: ae.Message})
}

// bind decodes the JSON body into dst, writing a 400 on failure.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, bindError(err))
		return false
	}
	return true
}

// bindQuery decodes query parameters into dst, writing a 400 on failure.
func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		fail(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		msgs := make([]string, len(ve))
		for i, fe := range ve {
			msgs[i] = fieldMessage(fe)
		}
		return apperr.Validation("%s", strings.Join(msgs, "; "))
	}
	if errors.Is(err, io.EOF) {
		return apperr.Validation("request body is required")
	}
	return apperr.Validation("invalid request: %s", err.Error())
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	case "clock":
		return field + " must be HH:MM"
	case "attstatus":
		return field + " must be one of present, absent, late, excused"
	case "sessiontype":
		return field + " is not a known session type"
	case "role":
		return field + " must be one of student, teacher, admin"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

var validatorsOnce sync.Once

// registerValidators adds the domain tags to gin's validator engine.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
			_, _, err := session.ParseClock(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("attstatus", func(fl validator.FieldLevel) bool {
			return attendance.Status(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("sessiontype", func(fl validator.FieldLevel) bool {
			return session.Type(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return user.Role(fl.Field().String()).Valid()
		})
	})
}

// actor returns the authenticated caller. Routes behind Authenticate always
// have one.
func actor(c *gin.Context) user.Actor {
	a, _ := auth.ActorFrom(c)
	return a
}

func (h *handler) health(c *gin.Context) {
	ctx := c.Request.Context()
	status := http.StatusOK
	checks := gin.H{}
	if h.Store != nil {
		if err := h.Store(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["store"] = err.Error()
		} else {
			checks["store"] = "ok"
		}
	}
	for name, check := range h.Others {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
		} else {
			checks[name] = "ok"
		}
	}
	c.JSON(status, envelope{Success: status == http.StatusOK, Data: checks})
}
