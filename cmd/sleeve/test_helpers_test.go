package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"sleeve/internal/config"
	"sleeve/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	catalog    string
	planPath   string
}

const cliPlan = `
[[release]]
title = "Night Drive"
artist = "Tape Loop"
slug = "night"
download_formats = ["mp3"]
tags = "normalize"

  [[release.track]]
  path = "night/01.flac"
  title = "Ignition"

  [[release.track]]
  path = "night/02.flac"
  title = "Overpass"
`

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	opts = append([]testsupport.ConfigOption{testsupport.WithCodecStubs()}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	catalog := filepath.Join(base, "catalog")
	testsupport.WriteText(t, filepath.Join(catalog, "night", "01.flac"), "first track")
	testsupport.WriteText(t, filepath.Join(catalog, "night", "02.flac"), "second track")
	planPath := filepath.Join(catalog, "plan.toml")
	testsupport.WriteText(t, planPath, cliPlan)

	configPath := filepath.Join(base, "sleeve.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, catalog: catalog, planPath: planPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
