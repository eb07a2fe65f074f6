package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sysglance/sysglance/pkg/types"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Window != DefaultWindow {
		t.Fatalf("Window = %v, want %v", cfg.Window, DefaultWindow)
	}
	if cfg.TopProcesses != types.DefaultTopProcesses {
		t.Fatalf("TopProcesses = %d, want %d", cfg.TopProcesses, types.DefaultTopProcesses)
	}
	if cfg.DomainTimeout != DefaultDomainTimeout {
		t.Fatalf("DomainTimeout = %v, want %v", cfg.DomainTimeout, DefaultDomainTimeout)
	}
	if len(cfg.ExcludeFilesystems) != len(DefaultExcludedFilesystems) {
		t.Fatalf("ExcludeFilesystems = %v", cfg.ExcludeFilesystems)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysglance.yaml")
	content := `window: 250ms
top_processes: 8
domain_timeout: 2s
exclude_filesystems:
  - tmpfs
  - squashfs
gpu:
  disable_nvidia: true
no_color: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Window != 250*time.Millisecond {
		t.Fatalf("Window = %v, want 250ms", cfg.Window)
	}
	if cfg.TopProcesses != 8 {
		t.Fatalf("TopProcesses = %d, want 8", cfg.TopProcesses)
	}
	if cfg.DomainTimeout != 2*time.Second {
		t.Fatalf("DomainTimeout = %v, want 2s", cfg.DomainTimeout)
	}
	if len(cfg.ExcludeFilesystems) != 2 || cfg.ExcludeFilesystems[1] != "squashfs" {
		t.Fatalf("ExcludeFilesystems = %v", cfg.ExcludeFilesystems)
	}
	if !cfg.GPU.DisableNVIDIA || cfg.GPU.DisableAMD {
		t.Fatalf("GPU = %+v", cfg.GPU)
	}
	if !cfg.NoColor {
		t.Fatal("NoColor should be true")
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysglance.yaml")
	if err := os.WriteFile(path, []byte("top_processes: 10\n"), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TopProcesses != 10 {
		t.Fatalf("TopProcesses = %d, want 10", cfg.TopProcesses)
	}
	if cfg.Window != DefaultWindow {
		t.Fatalf("Window = %v, want default %v", cfg.Window, DefaultWindow)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sysglance.yaml")
	if err := os.WriteFile(path, []byte("window: 250ms\n"), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}
	t.Setenv("SYSGLANCE_WINDOW", "1s")
	t.Setenv("SYSGLANCE_TOP", "2")
	t.Setenv("SYSGLANCE_EXCLUDE_FS", "tmpfs, overlay")
	t.Setenv("SYSGLANCE_DISABLE_AMD", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Window != time.Second {
		t.Fatalf("Window = %v, want 1s", cfg.Window)
	}
	if cfg.TopProcesses != 2 {
		t.Fatalf("TopProcesses = %d, want 2", cfg.TopProcesses)
	}
	if len(cfg.ExcludeFilesystems) != 2 || cfg.ExcludeFilesystems[1] != "overlay" {
		t.Fatalf("ExcludeFilesystems = %v", cfg.ExcludeFilesystems)
	}
	if !cfg.GPU.DisableAMD {
		t.Fatal("DisableAMD should be true")
	}
}

func TestBadDurationFails(t *testing.T) {
	t.Setenv("SYSGLANCE_WINDOW", "not-a-duration")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed SYSGLANCE_WINDOW")
	}
}

func TestMissingNamedFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestNormalizeClampsBadValues(t *testing.T) {
	t.Setenv("SYSGLANCE_TOP", "-3")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TopProcesses != types.DefaultTopProcesses {
		t.Fatalf("TopProcesses = %d, want default %d", cfg.TopProcesses, types.DefaultTopProcesses)
	}
}
