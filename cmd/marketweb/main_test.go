package main

import (
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/bazaar/internal/webapi"
)

func TestLoadConfigRequiresSigningKey(test *testing.T) {
	cmd := newRootCommand()
	test.Setenv("MARKETWEB_JWT_SIGNING_KEY", "")
	cfg := webapi.Config{}
	err := loadConfig(cmd, &cfg)
	if err == nil || !strings.Contains(err.Error(), flagJWTSigningKey) {
		test.Fatalf("expected signing key error, got %v", err)
	}
}

func TestLoadConfigFromFlagsAndEnv(test *testing.T) {
	test.Setenv("MARKETWEB_ENGINE_ADDR", "engine.internal:7000")
	cmd := newRootCommand()
	for flagName, value := range map[string]string{
		flagJWTSigningKey:    "secret",
		flagAllowedOrigins:   "https://market.example, https://admin.example",
		flagEngineInsecure:   "true",
		flagLeaderboardLimit: "25",
	} {
		if err := cmd.Flags().Set(flagName, value); err != nil {
			test.Fatalf("set %s: %v", flagName, err)
		}
	}
	cfg := webapi.Config{}
	if err := loadConfig(cmd, &cfg); err != nil {
		test.Fatalf("load: %v", err)
	}
	if cfg.EngineAddress != "engine.internal:7000" || !cfg.EngineInsecure {
		test.Fatalf("unexpected engine settings %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example" {
		test.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.LeaderboardLimit != 25 || cfg.AdminRole != "admin" || cfg.ListenAddr != ":9090" {
		test.Fatalf("unexpected defaults %+v", cfg)
	}
}
