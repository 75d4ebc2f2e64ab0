package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/config"
)

func testConfig() config.DevServerConfig {
	return config.DevServerConfig{
		JWTSecret: "secret",
		JWTIssuer: "pos-devserver",
		TokenTTL:  30 * time.Minute,
	}
}

func TestMintAndParseDeviceToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()

	token, err := MintDeviceToken(cfg, now, DeviceTokenPayload{DeviceID: "dev-1", BranchID: "br-1"})
	if err != nil {
		t.Fatalf("mint device token: %v", err)
	}

	claims, err := ParseDeviceToken(cfg, token)
	if err != nil {
		t.Fatalf("parse device token: %v", err)
	}
	if claims.DeviceID != "dev-1" || claims.Subject != "dev-1" {
		t.Fatalf("unexpected device id %q", claims.DeviceID)
	}
	if claims.BranchID != "br-1" {
		t.Fatalf("unexpected branch id %q", claims.BranchID)
	}
	if claims.Issuer != cfg.JWTIssuer {
		t.Fatalf("expected issuer %s, got %s", cfg.JWTIssuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("expected a jti")
	}

	exp := now.Add(cfg.TokenTTL)
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v", exp, claims.ExpiresAt.UTC())
	}
}

func TestMintDeviceTokenWithoutExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.TokenTTL = 0

	token, err := MintDeviceToken(cfg, time.Now(), DeviceTokenPayload{DeviceID: "dev-1", BranchID: "br-1"})
	if err != nil {
		t.Fatalf("mint device token: %v", err)
	}
	claims, err := ParseDeviceToken(cfg, token)
	if err != nil {
		t.Fatalf("parse device token: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", claims.ExpiresAt)
	}
}

func TestParseDeviceTokenInvalidSignature(t *testing.T) {
	cfg := testConfig()
	token, err := MintDeviceToken(cfg, time.Now(), DeviceTokenPayload{DeviceID: "dev-1", BranchID: "br-1"})
	if err != nil {
		t.Fatalf("mint device token: %v", err)
	}

	other := cfg
	other.JWTSecret = "other"
	if _, err := ParseDeviceToken(other, token); err == nil {
		t.Fatal("expected invalid signature error")
	}
}

func TestParseDeviceTokenExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TokenTTL = 15 * time.Minute

	token, err := MintDeviceToken(cfg, time.Now().Add(-time.Hour), DeviceTokenPayload{DeviceID: "dev-1", BranchID: "br-1"})
	if err != nil {
		t.Fatalf("mint device token: %v", err)
	}

	_, err = ParseDeviceToken(cfg, token)
	if err == nil {
		t.Fatal("expected expiration error")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMintDeviceTokenRequiresIdentity(t *testing.T) {
	cfg := testConfig()
	if _, err := MintDeviceToken(cfg, time.Now(), DeviceTokenPayload{BranchID: "br-1"}); err == nil {
		t.Fatal("expected missing device id error")
	}
	if _, err := MintDeviceToken(cfg, time.Now(), DeviceTokenPayload{DeviceID: "dev-1"}); err == nil {
		t.Fatal("expected missing branch id error")
	}
}
