package dto

import "time"

type ActivateRequest struct {
	Key string `json:"key" form:"key"`
}

type MobileActivateRequest struct {
	Key        string `json:"key"`
	Platform   string `json:"platform"`
	DeviceName string `json:"deviceName"`
	AppVersion string `json:"appVersion"`
}

type DeviceSessionResponse struct {
	DeviceSessionToken string    `json:"deviceSessionToken"`
	SessionID          string    `json:"sessionId"`
	ExpiresAt          time.Time `json:"expiresAt"`
}
