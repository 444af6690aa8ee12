package api

import (
	"github.com/gin-gonic/gin"

	"clubhub/internal/apperr"
	"clubhub/internal/auth"
	"clubhub/internal/user"
)

func (h *handler) authRoutes(g *gin.RouterGroup) {
	g.POST("/auth/register", h.register)
	g.POST("/auth/login", h.login)
	g.POST("/auth/refresh", h.refresh)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	User   user.User      `json:"user"`
	Tokens auth.TokenPair `json:"tokens"`
}

func (h *handler) register(c *gin.Context) {
	var req user.RegisterInput
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	tokens, err := h.Signer.Issue(u.ID, string(u.Role))
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "registered", authResponse{User: u, Tokens: tokens})
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bind(c, &req) {
		return
	}
	u, err := h.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	tokens, err := h.Signer.Issue(u.ID, string(u.Role))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, authResponse{User: u, Tokens: tokens})
}

// refresh exchanges a refresh token for a new pair. The role is reloaded so a
// promotion or demotion takes effect on the next refresh.
func (h *handler) refresh(c *gin.Context) {
	var req refreshRequest
	if !bind(c, &req) {
		return
	}
	claims, err := h.Signer.Parse(req.RefreshToken, auth.Refresh)
	if err != nil {
		fail(c, apperr.Unauthorized("invalid refresh token"))
		return
	}
	u, err := h.Users.Get(c.Request.Context(), claims.Subject)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			err = apperr.Unauthorized("invalid refresh token")
		}
		fail(c, err)
		return
	}
	if !u.IsActive {
		fail(c, apperr.Forbidden("account deactivated"))
		return
	}
	tokens, err := h.Signer.Issue(u.ID, string(u.Role))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, authResponse{User: u, Tokens: tokens})
}

func (h *handler) me(c *gin.Context) {
	u, err := h.Users.Get(c.Request.Context(), actor(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, u)
}
