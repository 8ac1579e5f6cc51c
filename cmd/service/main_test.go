package main

import (
	"context"
	"testing"
	"time"

	"github.com/weathertowear/service/internal/auth"
	"github.com/weathertowear/service/internal/config"
)

func TestBuildAuthProvider_DefaultsToLocal(t *testing.T) {
	cfg := &config.Config{AuthProvider: auth.ProviderLocal, OTPCodeTTL: 10 * time.Minute}
	provider, err := buildAuthProvider(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("buildAuthProvider() error = %v", err)
	}
	if _, ok := provider.(*auth.LocalProvider); !ok {
		t.Errorf("provider = %T, want *auth.LocalProvider", provider)
	}
}

func TestBuildAuthProvider_TwilioRequiresCredentials(t *testing.T) {
	cfg := &config.Config{AuthProvider: auth.ProviderTwilio}
	if _, err := buildAuthProvider(context.Background(), cfg, nil); err == nil {
		t.Fatal("buildAuthProvider() error = nil, want credential error")
	}
}

func TestBuildAuthProvider_CognitoRequiresPoolAndClient(t *testing.T) {
	cfg := &config.Config{AuthProvider: auth.ProviderCognito, CognitoRegion: "us-east-2"}
	if _, err := buildAuthProvider(context.Background(), cfg, nil); err == nil {
		t.Fatal("buildAuthProvider() error = nil, want configuration error")
	}
}
