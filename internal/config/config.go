// Package config loads storyvm.toml, the interpreter limits and I/O policy
// shared by the run and batch commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"storyvm/internal/charmap"
	"storyvm/internal/pool"
	"storyvm/internal/vm"
)

// FileName is the configuration file looked up by Find.
const FileName = "storyvm.toml"

// Config mirrors the sections of storyvm.toml. Every key is optional.
type Config struct {
	VM    VMConfig    `toml:"vm"`
	Pool  PoolConfig  `toml:"pool"`
	IO    IOConfig    `toml:"io"`
	Trace TraceConfig `toml:"trace"`
}

type VMConfig struct {
	StackDepth  int    `toml:"stack_depth"`
	StackMargin int    `toml:"stack_margin"`
	MaxObjects  int    `toml:"max_objects"`
	GCThreshold int    `toml:"gc_threshold"`
	UndoLimit   int    `toml:"undo_savepoints"`
	Seed        uint64 `toml:"seed"`
}

type PoolConfig struct {
	Variant   string `toml:"variant"`
	FlatLimit int    `toml:"flat_limit"`
}

type IOConfig struct {
	Safety          int    `toml:"safety"`
	Sandbox         string `toml:"sandbox"`
	Charset         string `toml:"charset"`
	FilenameCharset string `toml:"filename_charset"`
}

type TraceConfig struct {
	SingleStep bool `toml:"single_step"`
	TraceStack bool `toml:"trace_stack"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		VM: VMConfig{
			StackDepth:  vm.DefaultStackDepth,
			StackMargin: vm.DefaultStackMargin,
			GCThreshold: vm.DefaultGCThreshold,
			UndoLimit:   vm.DefaultUndoSavepoints,
		},
		Pool: PoolConfig{Variant: pool.VariantAuto.String(), FlatLimit: pool.DefaultFlatLimit},
		IO: IOConfig{
			Safety:          int(vm.SafetySandbox),
			Sandbox:         ".",
			Charset:         "utf-8",
			FilenameCharset: "utf-8",
		},
	}
}

// Find walks up from startDir looking for storyvm.toml.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load reads path over the defaults. Keys the file leaves out keep their
// default values; keys it sets are validated.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if meta.IsDefined("vm", "stack_depth") && cfg.VM.StackDepth <= 0 {
		return Config{}, fmt.Errorf("%s: [vm].stack_depth must be positive", path)
	}
	if meta.IsDefined("vm", "max_objects") && cfg.VM.MaxObjects < 0 {
		return Config{}, fmt.Errorf("%s: [vm].max_objects must not be negative", path)
	}
	if meta.IsDefined("pool", "flat_limit") && cfg.Pool.FlatLimit <= 0 {
		return Config{}, fmt.Errorf("%s: [pool].flat_limit must be positive", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads the nearest storyvm.toml above dir, or the defaults
// when there is none. It returns the path it loaded, if any.
func LoadOrDefault(dir string) (Config, string, error) {
	path, ok, err := Find(dir)
	if err != nil || !ok {
		return Default(), "", err
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate checks values that do not depend on the file they came from.
func (c Config) Validate() error {
	if _, err := pool.ParseVariant(c.Pool.Variant); err != nil {
		return fmt.Errorf("[pool].variant: %w", err)
	}
	if c.IO.Safety < int(vm.SafetyNone) || c.IO.Safety > int(vm.SafetyNoAccess) {
		return fmt.Errorf("[io].safety must be between %d and %d, got %d", vm.SafetyNone, vm.SafetyNoAccess, c.IO.Safety)
	}
	if _, err := charmap.Lookup(c.IO.Charset); err != nil {
		return fmt.Errorf("[io].charset: %w", err)
	}
	if _, err := charmap.Lookup(c.IO.FilenameCharset); err != nil {
		return fmt.Errorf("[io].filename_charset: %w", err)
	}
	return nil
}

// Options converts the configuration to interpreter options. The caller adds
// the tracer, trace sink and save store.
func (c Config) Options() (vm.Options, error) {
	variant, err := pool.ParseVariant(c.Pool.Variant)
	if err != nil {
		return vm.Options{}, err
	}
	fnames, err := charmap.Lookup(c.IO.FilenameCharset)
	if err != nil {
		return vm.Options{}, err
	}
	return vm.Options{
		StackDepth:      c.VM.StackDepth,
		StackMargin:     c.VM.StackMargin,
		MaxObjects:      c.VM.MaxObjects,
		GCThreshold:     c.VM.GCThreshold,
		UndoSavepoints:  c.VM.UndoLimit,
		Seed:            c.VM.Seed,
		PoolVariant:     variant,
		FlatLimit:       c.Pool.FlatLimit,
		Safety:          vm.SafetyLevel(c.IO.Safety),
		Sandbox:         c.IO.Sandbox,
		FilenameCharset: fnames,
		SingleStep:      c.Trace.SingleStep,
		TraceStack:      c.Trace.TraceStack,
	}, nil
}

// Charset returns the mapper for console text.
func (c Config) Charset() (charmap.Mapper, error) {
	return charmap.Lookup(c.IO.Charset)
}
