package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// DeviceTokenPayload captures what the sync server knows when a device pairs.
type DeviceTokenPayload struct {
	DeviceID string
	BranchID string
	JTI      string
}

// DeviceClaims is the typed JWT handed to a paired device.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	BranchID string `json:"branch_id"`
	jwt.RegisteredClaims
}
