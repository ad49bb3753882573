package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tabula/internal/services"
	"tabula/internal/utils"
)

var secret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/", append(handlers, func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID.String(), "role": user.Role})
	})...)
	return r
}

func get(r http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthenticate(t *testing.T) {
	r := newRouter(Authenticate(secret))
	userID := uuid.New()

	token, err := utils.GenerateAccessToken(userID, services.RoleAdmin, secret, time.Minute)
	require.NoError(t, err)
	w := get(r, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+userID.String()+`","role":"admin"}`, w.Body.String())

	expired, err := utils.GenerateAccessToken(userID, "", secret, -time.Minute)
	require.NoError(t, err)
	forged, err := utils.GenerateAccessToken(userID, "", []byte("other"), time.Minute)
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing": "",
		"format":  "Token " + token,
		"expired": "Bearer " + expired,
		"forged":  "Bearer " + forged,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, header).Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter(Authenticate(secret), RequireAdmin)

	member, err := utils.GenerateAccessToken(uuid.New(), "", secret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, get(r, "Bearer "+member).Code)

	admin, err := utils.GenerateAccessToken(uuid.New(), services.RoleAdmin, secret, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, "Bearer "+admin).Code)

	assert.Equal(t, http.StatusUnauthorized, get(newRouter(RequireAdmin), "").Code)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	get(r, "")
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	served := logs.FilterMessage("Request served").All()
	require.Len(t, served, 2)
	assert.Equal(t, int64(http.StatusNoContent), served[1].ContextMap()["status"])

	failed := logs.FilterMessage("Request failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Contains(t, failed[0].ContextMap()["error"], assert.AnError.Error())
}

func TestTimeout(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Second))
	var deadline time.Time
	r.GET("/", func(c *gin.Context) {
		deadline, _ = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})
	get(r, "")
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, time.Second)
}

func TestCORS(t *testing.T) {
	preflight := func(r http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	corsRouter := func(h gin.HandlerFunc) *gin.Engine {
		r := gin.New()
		r.Use(h)
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	dev := corsRouter(CORS(false, nil))
	w := preflight(dev, "http://localhost:3000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	prod := corsRouter(CORS(true, []string{"https://app.example.com"}))
	w = preflight(prod, "https://app.example.com")
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	w = preflight(prod, "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
