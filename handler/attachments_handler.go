package handler

import (
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"main/config"
	"main/dto"
	"main/services"
	"main/utils"
)

// ListAttachmentsHandler returns the stored attachment objects.
func ListAttachmentsHandler(c *gin.Context, cfg *config.Config, storage *services.StorageClient) {
	if !cfg.StorageConfigured() {
		utils.ServiceUnavailable(c, "Object storage is not configured")
		return
	}

	objects, err := storage.List(c.Request.Context(), cfg.StoragePrefix)
	if err != nil {
		log.Printf("Failed to list attachments: %v", err)
		utils.TrackError("storage", "list_failed")
		utils.InternalError(c, "Failed to list attachments")
		return
	}

	utils.Success(c, gin.H{"attachments": objects})
}

// CreateUploadURLHandler grants a time-limited, size-capped upload.
func CreateUploadURLHandler(c *gin.Context, cfg *config.Config, storage *services.StorageClient) {
	if !cfg.StorageConfigured() {
		utils.ServiceUnavailable(c, "Object storage is not configured")
		return
	}

	var req dto.UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid Request")
		return
	}

	if !strings.HasPrefix(req.ContentType, cfg.UploadContentType) {
		utils.BadRequest(c, fmt.Sprintf("Content type must start with %q", cfg.UploadContentType))
		return
	}

	// Random prefix keeps uploads from clobbering each other while the
	// original file name stays readable in listings.
	key := cfg.StoragePrefix + uuid.New().String() + "-" + path.Base(req.FileName)

	upload, err := storage.PresignUpload(key, req.ContentType, cfg.UploadContentType, cfg.UploadMaxBytes, cfg.UploadURLTTL)
	if err != nil {
		log.Printf("Failed to presign upload: %v", err)
		utils.TrackError("storage", "presign_upload_failed")
		utils.InternalError(c, "Failed to create upload URL")
		return
	}

	utils.Success(c, dto.UploadURLResponse{URL: upload.URL, Fields: upload.Fields, Key: key})
}

// CreateDownloadURLHandler grants a time-limited download for one object key.
func CreateDownloadURLHandler(c *gin.Context, cfg *config.Config, storage *services.StorageClient) {
	if !cfg.StorageConfigured() {
		utils.ServiceUnavailable(c, "Object storage is not configured")
		return
	}

	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "Object key required")
		return
	}
	// Downloads are scoped to the attachment prefix; anything else in the
	// bucket stays unreachable through this endpoint.
	if !strings.HasPrefix(key, cfg.StoragePrefix) || strings.Contains(key, "..") {
		utils.NotFound(c, "Attachment not found")
		return
	}

	downloadURL, err := storage.PresignDownload(key, cfg.DownloadURLTTL)
	if err != nil {
		log.Printf("Failed to presign download: %v", err)
		utils.TrackError("storage", "presign_download_failed")
		utils.InternalError(c, "Failed to create download URL")
		return
	}

	utils.Success(c, dto.DownloadURLResponse{URL: downloadURL, Key: key})
}
