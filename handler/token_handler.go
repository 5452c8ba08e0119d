package handler

import (
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"main/config"
	"main/dto"
	"main/model"
	"main/services"
	"main/utils"
)

// MintKidTokenHandler mints an identity token for the shared kid principal.
// Device authorization already happened at the gate; no further credential is
// required.
func MintKidTokenHandler(c *gin.Context, cfg *config.Config, identity *services.IdentityClient) {
	c.Header("Cache-Control", "no-store")

	if !identity.Configured() {
		utils.TrackError("elevation", "unconfigured")
		utils.ServiceUnavailable(c, "Identity system is not configured")
		return
	}

	ctx := c.Request.Context()
	token, err := identity.CreateToken(ctx, cfg.FamilyEmail)
	if err != nil {
		log.Printf("Failed to mint kid token: %v", err)
		utils.TrackError("elevation", "kid_mint_failed")
		utils.InternalError(c, "Failed to mint token")
		return
	}

	if err := identity.EnsureUserType(ctx, cfg.FamilyEmail, model.RoleKid); err != nil {
		log.Printf("Failed to stamp kid user type: %v", err)
		utils.TrackError("elevation", "kid_type_stamp_failed")
		utils.InternalError(c, "Failed to mint token")
		return
	}

	utils.TrackAuthAttempt("success", "kid_mint")
	utils.TrackTokenUsage("kid", "issued")
	utils.Success(c, dto.PrincipalTokenResponse{Token: token, PrincipalType: "kid"})
}

// MintParentTokenHandler elevates to the parent principal. The gates run in a
// fixed order and the first failure ends the request: rate limit, member
// lookup, role check, PIN check. Every failure after the rate-limit gate
// records against the same limiter key, so triggering a different error type
// never bypasses the backoff.
func MintParentTokenHandler(c *gin.Context, cfg *config.Config, identity *services.IdentityClient, limiter *services.RateLimiter) {
	c.Header("Cache-Control", "no-store")

	var req dto.ParentMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.TrackAuthAttempt("failure", "parent_mint")
		utils.BadRequest(c, "Invalid Request")
		return
	}

	if !identity.Configured() {
		utils.TrackError("elevation", "unconfigured")
		utils.ServiceUnavailable(c, "Identity system is not configured")
		return
	}

	sourceIP := c.GetHeader("X-Forwarded-For")
	if sourceIP == "" {
		sourceIP = c.ClientIP()
	}
	key := services.RateLimitKey(req.FamilyMemberID, sourceIP)
	now := time.Now()

	if allowed, retryAfter := limiter.Check(key, now); !allowed {
		utils.RateLimitBlocks.Inc()
		utils.TrackAuthAttempt("failure", "parent_mint")
		retrySeconds := int64((retryAfter + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.FormatInt(retrySeconds, 10))
		utils.TooManyRequests(c, "Too many attempts", gin.H{"retryAfterMs": retryAfter.Milliseconds()})
		return
	}

	ctx := c.Request.Context()
	member, err := identity.FamilyMemberByID(ctx, req.FamilyMemberID)
	if err != nil {
		log.Printf("Family member lookup failed: %v", err)
		utils.TrackError("elevation", "member_lookup_failed")
		utils.InternalError(c, "Failed to mint token")
		return
	}
	if member == nil {
		limiter.RecordFailure(key, now)
		utils.TrackAuthAttempt("failure", "parent_mint")
		utils.NotFound(c, "Family member not found")
		return
	}

	if member.Role != model.RoleParent {
		limiter.RecordFailure(key, now)
		utils.TrackAuthAttempt("failure", "parent_mint")
		utils.Forbidden(c, "Not a parent account")
		return
	}

	// Members without a stored PIN hash skip verification entirely.
	if member.PinHash != "" {
		if req.Pin == "" {
			limiter.RecordFailure(key, now)
			utils.TrackAuthAttempt("failure", "parent_mint")
			utils.BadRequest(c, "PIN required")
			return
		}
		if services.HashPin(req.Pin) != member.PinHash {
			limiter.RecordFailure(key, now)
			utils.TrackAuthAttempt("failure", "parent_mint")
			utils.Forbidden(c, "Invalid PIN")
			return
		}
	}

	limiter.Clear(key)

	token, err := identity.CreateToken(ctx, member.Email)
	if err != nil {
		log.Printf("Failed to mint parent token: %v", err)
		utils.TrackError("elevation", "parent_mint_failed")
		utils.InternalError(c, "Failed to mint token")
		return
	}

	if err := identity.EnsureUserType(ctx, member.Email, model.RoleParent); err != nil {
		log.Printf("Failed to stamp parent user type: %v", err)
		utils.TrackError("elevation", "parent_type_stamp_failed")
		utils.InternalError(c, "Failed to mint token")
		return
	}

	utils.TrackAuthAttempt("success", "parent_mint")
	utils.TrackTokenUsage("parent", "issued")
	utils.Success(c, dto.PrincipalTokenResponse{Token: token, PrincipalType: "parent"})
}
