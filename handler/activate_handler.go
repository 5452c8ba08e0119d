package handler

import (
	"log"

	"github.com/gin-gonic/gin"

	"main/config"
	"main/dto"
	"main/middleware"
	"main/services"
	"main/utils"
)

// ActivateDeviceHandler handles browser activation: a one-time shared key
// exchanged for the long-lived device cookie. The endpoint itself is
// unauthenticated by design; the key is the credential.
func ActivateDeviceHandler(c *gin.Context, cfg *config.Config) {
	if !cfg.ActivationConfigured() {
		utils.TrackError("activation", "unconfigured")
		utils.ServiceUnavailable(c, "Device activation is not configured")
		return
	}

	var req dto.ActivateRequest
	if err := c.ShouldBind(&req); err != nil || req.Key == "" {
		utils.TrackAuthAttempt("failure", "device_activate")
		utils.BadRequest(c, "Activation key required")
		return
	}

	if !services.VerifyActivationKey(cfg, req.Key) {
		utils.TrackAuthAttempt("failure", "device_activate")
		utils.Forbidden(c, "Invalid activation key")
		return
	}

	middleware.SetDeviceCookie(c, cfg)
	utils.TrackAuthAttempt("success", "device_activate")
	utils.Success(c, gin.H{"activated": true})
}

// ActivateMobileDeviceHandler exchanges the activation key for a device
// session token instead of a cookie.
func ActivateMobileDeviceHandler(c *gin.Context, cfg *config.Config, sessions *services.DeviceSessionManager) {
	if !cfg.ActivationConfigured() {
		utils.TrackError("activation", "unconfigured")
		utils.ServiceUnavailable(c, "Device activation is not configured")
		return
	}

	var req dto.MobileActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		utils.TrackAuthAttempt("failure", "mobile_activate")
		utils.BadRequest(c, "Activation key required")
		return
	}

	// Only the iOS app ships today; reject anything else before the
	// session manager ever sees it.
	if req.Platform != "ios" {
		utils.TrackAuthAttempt("failure", "mobile_activate")
		utils.BadRequest(c, "Unsupported platform")
		return
	}

	if !services.VerifyActivationKey(cfg, req.Key) {
		utils.TrackAuthAttempt("failure", "mobile_activate")
		utils.Forbidden(c, "Invalid activation key")
		return
	}

	deviceName := req.DeviceName
	if deviceName == "" {
		deviceName = utils.DeviceDisplayName(c.Request.UserAgent())
	}

	issued, err := sessions.Issue(services.IssueParams{
		Platform:   req.Platform,
		DeviceName: deviceName,
		AppVersion: req.AppVersion,
		IPAddress:  c.ClientIP(),
	})
	if err != nil {
		log.Printf("Failed to issue device session: %v", err)
		utils.TrackError("activation", "session_issue_failed")
		utils.InternalError(c, "Failed to activate device")
		return
	}

	utils.TrackAuthAttempt("success", "mobile_activate")
	utils.TrackTokenUsage("device", "issued")
	c.Header("Cache-Control", "no-store")
	utils.Success(c, dto.DeviceSessionResponse{
		DeviceSessionToken: issued.Token,
		SessionID:          issued.SessionID,
		ExpiresAt:          issued.ExpiresAt,
	})
}
