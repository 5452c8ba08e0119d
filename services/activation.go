package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"

	"main/config"
)

// Argon2 parameters for the at-rest activation key digest.
const (
	activationMemory      = 64 * 1024
	activationIterations  = 3
	activationParallelism = 2
	activationKeyLength   = 32
)

// HashActivationKey produces a salt$hash digest suitable for
// DEVICE_ACTIVATION_KEY_HASH.
func HashActivationKey(key string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.New("failed to generate salt")
	}

	hash := argon2.IDKey([]byte(key), salt, activationIterations, activationMemory, activationParallelism, activationKeyLength)

	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedHash := base64.RawStdEncoding.EncodeToString(hash)
	return encodedSalt + "$" + encodedHash, nil
}

// VerifyActivationKey checks a presented key against the configured one.
// Plain-key config uses a constant-time comparison; digest config recomputes
// the argon2 hash with the stored salt.
func VerifyActivationKey(cfg *config.Config, presented string) bool {
	if presented == "" {
		return false
	}

	if cfg.DeviceActivationKey != "" {
		return subtle.ConstantTimeCompare([]byte(cfg.DeviceActivationKey), []byte(presented)) == 1
	}

	if cfg.DeviceActivationKeyHash == "" {
		return false
	}

	parts := strings.Split(cfg.DeviceActivationKeyHash, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	storedHash, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(presented), salt, activationIterations, activationMemory, activationParallelism, activationKeyLength)
	return subtle.ConstantTimeCompare(computed, storedHash) == 1
}
