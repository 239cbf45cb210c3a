package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h, err := HashPassword("s3cret")
	require.NoError(t, err)
	b := Basic{Username: "ops", PasswordHash: h}
	require.NoError(t, b.Validate())

	assert.NoError(t, b.Verify("ops", "s3cret"))
	assert.ErrorIs(t, b.Verify("ops", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, b.Verify("root", "s3cret"), ErrInvalidCredentials)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Basic{}.Validate())
	assert.Error(t, Basic{PasswordHash: "x"}.Validate())
	assert.Error(t, Basic{Username: "ops", PasswordHash: "plaintext"}.Validate())
}

func TestGinAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, err := HashPassword("pw")
	require.NoError(t, err)

	serve := func(b Basic, req *http.Request) int {
		g := gin.New()
		g.Use(b.GinAuth())
		g.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		g.ServeHTTP(w, req)
		return w.Code
	}

	anon := httptest.NewRequest(http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, serve(Basic{}, anon))

	b := Basic{Username: "ops", PasswordHash: h}
	assert.Equal(t, http.StatusUnauthorized, serve(b, httptest.NewRequest(http.MethodGet, "/status", nil)))

	good := httptest.NewRequest(http.MethodGet, "/status", nil)
	good.SetBasicAuth("ops", "pw")
	assert.Equal(t, http.StatusOK, serve(b, good))

	bad := httptest.NewRequest(http.MethodGet, "/status", nil)
	bad.SetBasicAuth("ops", "nope")
	assert.Equal(t, http.StatusUnauthorized, serve(b, bad))
}
