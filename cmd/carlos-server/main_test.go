package main

import (
	"context"
	"testing"
	"time"
)

func TestRunInvalidConfig(t *testing.T) {
	t.Setenv("CARLOS_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a nonexistent config path")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CARLOS_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("CARLOS_CONFIG", "/etc/carlos/config.yaml")
	if got := getConfigPath(); got != "/etc/carlos/config.yaml" {
		t.Errorf("getConfigPath() = %q, want env override", got)
	}
}
