package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"main/dto"
	"main/repository"
	"main/services"
	"main/utils"
)

// RefreshDeviceSessionHandler rotates the bearer token presented in the
// Authorization header. The old token stops authenticating once the rotation
// succeeds.
func RefreshDeviceSessionHandler(c *gin.Context, sessions *services.DeviceSessionManager) {
	c.Header("Cache-Control", "no-store")

	token, ok := services.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		utils.TrackAuthAttempt("failure", "session_refresh")
		utils.Unauthorized(c, "Unauthorized Device")
		return
	}

	issued, err := sessions.Refresh(token)
	if err != nil {
		// Every failure mode collapses to the same response.
		utils.TrackAuthAttempt("failure", "session_refresh")
		utils.Unauthorized(c, "Unauthorized Device")
		return
	}

	utils.TrackAuthAttempt("success", "session_refresh")
	utils.TrackTokenUsage("device", "refreshed")
	utils.Success(c, dto.DeviceSessionResponse{
		DeviceSessionToken: issued.Token,
		SessionID:          issued.SessionID,
		ExpiresAt:          issued.ExpiresAt,
	})
}

// RevokeDeviceSessionHandler invalidates the session behind the presented
// token.
func RevokeDeviceSessionHandler(c *gin.Context, sessions *services.DeviceSessionManager) {
	c.Header("Cache-Control", "no-store")

	token, ok := services.ExtractBearerToken(c.GetHeader("Authorization"))
	if !ok {
		utils.TrackAuthAttempt("failure", "session_revoke")
		utils.Unauthorized(c, "Unauthorized Device")
		return
	}

	if err := sessions.Revoke(token); err != nil {
		utils.TrackAuthAttempt("failure", "session_revoke")
		utils.Unauthorized(c, "Unauthorized Device")
		return
	}

	utils.TrackTokenUsage("device", "revoked")
	utils.Success(c, gin.H{"ok": true})
}

// ListDeviceSessionsHandler returns the active device sessions. Requires the
// Mongo-backed session table; without it the listing is unavailable.
func ListDeviceSessionsHandler(c *gin.Context, repo *repository.DeviceSessionRepo) {
	if repo == nil {
		utils.ServiceUnavailable(c, "Session listing is not available")
		return
	}

	sessions, err := repo.ListActiveSessions()
	if err != nil {
		log.Printf("Failed to list device sessions: %v", err)
		utils.TrackError("sessions", "list_failed")
		utils.InternalError(c, "Failed to list sessions")
		return
	}

	if count, err := repo.CountActiveSessions(); err == nil {
		utils.ActiveDeviceSessions.Set(float64(count))
	}

	utils.Success(c, gin.H{"sessions": sessions})
}
