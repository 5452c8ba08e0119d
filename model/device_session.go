package model

import "time"

// DeviceSession is the durable record of an activated mobile device. Token
// validity is checked against the signed token itself plus the session state
// store; this record backs listing and revocation audit.
type DeviceSession struct {
	SessionID      string    `bson:"session_id" json:"session_id"`
	Platform       string    `bson:"platform" json:"platform"`
	DeviceName     string    `bson:"device_name" json:"device_name"`
	AppVersion     string    `bson:"app_version" json:"app_version"`
	IPAddress      string    `bson:"ip_address" json:"ip_address"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt      time.Time `bson:"expires_at" json:"expires_at"`
	LastActivityAt time.Time `bson:"last_activity_at" json:"last_activity_at"`
	Revoked        bool      `bson:"revoked" json:"revoked"`
}
