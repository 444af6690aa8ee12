package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clubhub/internal/user"
)

func init() { gin.SetMode(gin.TestMode) }

func TestIssueAndParse(t *testing.T) {
	s := NewSigner("secret", "clubhub", 15*time.Minute, 24*time.Hour)
	pair, err := s.Issue("u1", "teacher")
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := s.Parse(pair.AccessToken, Access)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "teacher", claims.Role)

	_, err = s.Parse(pair.RefreshToken, Access)
	assert.ErrorIs(t, err, ErrWrongType)

	claims, err = s.Parse(pair.RefreshToken, Refresh)
	require.NoError(t, err)
	assert.Equal(t, Refresh, claims.Type)
}

func TestParseRejects(t *testing.T) {
	s := NewSigner("secret", "clubhub", time.Minute, time.Hour)
	pair, err := s.Issue("u1", "student")
	require.NoError(t, err)

	other := NewSigner("other", "clubhub", time.Minute, time.Hour)
	_, err = other.Parse(pair.AccessToken, Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := NewSigner("secret", "elsewhere", time.Minute, time.Hour)
	_, err = foreign.Parse(pair.AccessToken, Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = s.Parse(pair.AccessToken, Access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse("garbage", Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newRouter(s *Signer, roles ...user.Role) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{Authenticate(s)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRole(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.ID+":"+string(actor.Role))
	})
	r.GET("/p", handlers...)
	return r
}

func do(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticateMiddleware(t *testing.T) {
	s := NewSigner("secret", "clubhub", time.Minute, time.Hour)
	pair, err := s.Issue("u1", "student")
	require.NoError(t, err)
	r := newRouter(s)

	w := do(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"message":"missing bearer token"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do(r, pair.RefreshToken).Code)

	w = do(r, pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1:student", w.Body.String())
}

func TestRequireRole(t *testing.T) {
	s := NewSigner("secret", "clubhub", time.Minute, time.Hour)
	student, err := s.Issue("u1", "student")
	require.NoError(t, err)
	admin, err := s.Issue("u2", "admin")
	require.NoError(t, err)
	r := newRouter(s, user.RoleTeacher, user.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, do(r, student.AccessToken).Code)
	assert.Equal(t, http.StatusOK, do(r, admin.AccessToken).Code)
}
