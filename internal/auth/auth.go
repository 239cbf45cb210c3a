// Package auth protects the status endpoint with HTTP basic authentication.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong user or password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Basic holds one user and the bcrypt hash of its password.
type Basic struct {
	Username     string `mapstructure:"user"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Enabled reports whether a user is configured.
func (b Basic) Enabled() bool { return b.Username != "" }

// Validate checks that an enabled config carries a usable bcrypt hash.
func (b Basic) Validate() error {
	if !b.Enabled() {
		if b.PasswordHash != "" {
			return errors.New("status password hash given without a user")
		}
		return nil
	}
	if _, err := bcrypt.Cost([]byte(b.PasswordHash)); err != nil {
		return errors.New("status password hash is not a bcrypt hash")
	}
	return nil
}

// Verify checks a username and password pair.
func (b Basic) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(b.Username)) == 1
	// always run bcrypt so a wrong user costs the same as a wrong password
	pwErr := bcrypt.CompareHashAndPassword([]byte(b.PasswordHash), []byte(password))
	if !userOK || pwErr != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword returns the bcrypt hash to store in the config.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// GinAuth returns a Gin middleware enforcing b. A disabled config lets
// every request through.
func (b Basic) GinAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !b.Enabled() {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok || b.Verify(user, pass) != nil {
			c.Header("WWW-Authenticate", `Basic realm="svcwrap"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "authentication_failed",
				"message": "Authentication required",
			})
			return
		}
		c.Next()
	}
}
