package middleware

import (
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"main/config"
	"main/services"
	"main/utils"
)

// Paths that must stay reachable from an unactivated device: the activation
// endpoints themselves, health/metrics, and the offline shell the installed
// web app boots from.
var allowListedPaths = map[string]bool{
	"/api/device/activate":        true,
	"/api/device/activate/mobile": true,
	"/healthz":                    true,
	"/metrics":                    true,
	"/manifest.json":              true,
	"/sw.js":                      true,
	"/offline.html":               true,
	"/favicon.ico":                true,
}

var allowListedExtensions = map[string]bool{
	".js":          true,
	".css":         true,
	".png":         true,
	".svg":         true,
	".ico":         true,
	".webp":        true,
	".woff2":       true,
	".map":         true,
	".webmanifest": true,
}

// DeviceGateMiddleware authorizes every request before it reaches a route
// handler. Browsers carry the device cookie, mobile clients a bearer token.
// Unauthorized page navigations get an opaque 404 so the gate's existence is
// not revealed; API calls get a structured 401. That asymmetry is deliberate.
func DeviceGateMiddleware(cfg *config.Config, sessions *services.DeviceSessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestPath := c.Request.URL.Path
		isAPI := strings.HasPrefix(requestPath, "/api/")

		if allowListedPaths[requestPath] || allowListedExtensions[path.Ext(requestPath)] {
			c.Next()
			return
		}

		// Magic-link activation: any page route with ?activate=<key>.
		// A bad key falls through to the opaque rejection below.
		if !isAPI && c.Request.Method == http.MethodGet {
			if key := c.Query("activate"); key != "" {
				if cfg.ActivationConfigured() && services.VerifyActivationKey(cfg, key) {
					SetDeviceCookie(c, cfg)
					utils.TrackAuthAttempt("success", "device_magic_link")
					c.Redirect(http.StatusTemporaryRedirect, "/")
					c.Abort()
					return
				}
				utils.TrackAuthAttempt("failure", "device_magic_link")
			}
		}

		if cookie, err := c.Cookie(cfg.DeviceCookieName); err == nil && cookie == cfg.DeviceCookieValue {
			c.Next()
			return
		}

		if token, ok := services.ExtractBearerToken(c.GetHeader("Authorization")); ok {
			if sessionID, ok := sessions.Authenticate(token); ok {
				c.Set("device_session_id", sessionID)
				c.Next()
				return
			}
		}

		utils.TrackAuthAttempt("failure", "device_gate")
		if isAPI {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized Device"})
		} else {
			c.String(http.StatusNotFound, "Not Found")
		}
		c.Abort()
	}
}

// SetDeviceCookie marks the browser as an authorized household device.
func SetDeviceCookie(c *gin.Context, cfg *config.Config) {
	c.SetCookie(
		cfg.DeviceCookieName,
		cfg.DeviceCookieValue,
		cfg.DeviceCookieMaxAge,
		"/",
		"",
		true,
		true,
	)
}
