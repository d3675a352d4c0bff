package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// wantsJSON distinguishes API clients from browsers.
func wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

const storeUnavailablePage = `<!DOCTYPE html>
<html>
<head><title>Service Unavailable</title></head>
<body style="font-family: system-ui; max-width: 400px; margin: 100px auto; text-align: center;">
<h1>Service Unavailable</h1>
<p>We could not reach the account store. Please try again shortly.</p>
</body>
</html>`

// respondStoreUnavailable aborts with 503. The request is not retried.
func respondStoreUnavailable(c *gin.Context) {
	if wantsJSON(c) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":  "service unavailable",
			"reason": ReasonStoreUnavailable,
		})
		return
	}
	c.Data(http.StatusServiceUnavailable, "text/html; charset=utf-8", []byte(storeUnavailablePage))
	c.Abort()
}

// isLocalPath validates that a redirect path is local to prevent open redirect attacks.
func isLocalPath(path string) bool {
	if path == "" {
		return false
	}

	// Must start with /
	if !strings.HasPrefix(path, "/") {
		return false
	}

	// Reject protocol-relative URLs (//evil.com)
	if strings.HasPrefix(path, "//") {
		return false
	}

	// Reject URLs with schemes
	if strings.Contains(path, "://") {
		return false
	}

	// Reject paths with backslashes (potential bypass attempts)
	if strings.Contains(path, "\\") {
		return false
	}

	return true
}

// sanitizeRedirectPath returns path if it is local, fallback otherwise.
func sanitizeRedirectPath(path, fallback string) string {
	if isLocalPath(path) {
		return path
	}
	return fallback
}
