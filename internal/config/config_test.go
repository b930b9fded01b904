package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyvm/internal/config"
	"storyvm/internal/pool"
	"storyvm/internal/vm"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, config.FileName)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
[vm]
stack_depth = 512
seed = 42

[pool]
variant = "paged"

[io]
safety = 3
filename_charset = "latin1"

[trace]
single_step = true
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.VM.StackDepth != 512 || cfg.VM.Seed != 42 {
		t.Fatalf("unexpected vm section %+v", cfg.VM)
	}
	if cfg.VM.GCThreshold != vm.DefaultGCThreshold {
		t.Fatalf("expected default gc threshold, got %d", cfg.VM.GCThreshold)
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.PoolVariant != pool.VariantPaged || opts.Safety != vm.SafetyReadLocal || !opts.SingleStep {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.FilenameCharset == nil || opts.FilenameCharset.Name() != "iso-8859-1" {
		t.Fatalf("expected the latin-1 filename mapping, got %v", opts.FilenameCharset)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "syntax", body: "[vm\n", want: "failed to parse TOML"},
		{name: "unknown key", body: "[vm]\nstack = 1\n", want: "unknown key vm.stack"},
		{name: "stack depth", body: "[vm]\nstack_depth = 0\n", want: "[vm].stack_depth"},
		{name: "variant", body: "[pool]\nvariant = \"huge\"\n", want: "[pool].variant"},
		{name: "safety", body: "[io]\nsafety = 9\n", want: "[io].safety"},
		{name: "charset", body: "[io]\ncharset = \"klingon\"\n", want: "[io].charset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.body)
			_, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOrDefaultSearchesParents(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "[vm]\nmax_objects = 100\n")
	sub := filepath.Join(root, "stories", "demo")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := config.LoadOrDefault(sub)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if path != filepath.Join(root, config.FileName) || cfg.VM.MaxObjects != 100 {
		t.Fatalf("unexpected %q %+v", path, cfg.VM)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}
