package config

import (
	"testing"
	"time"
)

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Name != "kanbo" {
		t.Errorf("expected default database name kanbo, got %s", cfg.Database.Name)
	}
	if cfg.JWT.ExpiresIn != 24*time.Hour {
		t.Errorf("expected default jwt expiry 24h, got %s", cfg.JWT.ExpiresIn)
	}
}

func TestGetDefaultConfig_Automation(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Automation.Workers <= 0 {
		t.Errorf("expected positive worker count, got %d", cfg.Automation.Workers)
	}
	if cfg.Automation.PollInterval <= 0 {
		t.Errorf("expected positive poll interval, got %s", cfg.Automation.PollInterval)
	}
	if cfg.Automation.MaxAttempts <= 0 {
		t.Errorf("expected positive max attempts, got %d", cfg.Automation.MaxAttempts)
	}
	if cfg.Automation.StaleRunning <= 0 {
		t.Errorf("expected positive stale-running window, got %s", cfg.Automation.StaleRunning)
	}
}

func TestGetDefaultConfig_Security(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Security.CORS.Enabled {
		t.Error("expected CORS enabled by default")
	}
	if len(cfg.Security.CORS.AllowedMethods) == 0 {
		t.Error("expected default allowed methods")
	}
	// 限流默认关闭，按部署环境显式开启
	if cfg.Security.RateLimiting.Enabled {
		t.Error("expected rate limiting disabled by default")
	}
}

func TestGetDefaultConfig_Monitoring(t *testing.T) {
	cfg := GetDefaultConfig()

	if !cfg.Monitoring.Enabled {
		t.Error("expected monitoring enabled by default")
	}
	if cfg.Monitoring.MetricsPath != "/metrics" {
		t.Errorf("expected default metrics path /metrics, got %s", cfg.Monitoring.MetricsPath)
	}
	if cfg.Monitoring.Tracing.Enabled {
		t.Error("expected tracing disabled by default")
	}
	if cfg.Monitoring.Tracing.ServiceName != "kanbo" {
		t.Errorf("expected default tracing service name kanbo, got %s", cfg.Monitoring.Tracing.ServiceName)
	}
}
