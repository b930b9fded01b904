package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"storyvm/internal/config"
	"storyvm/internal/image"
	"storyvm/internal/observ"
	"storyvm/internal/vm"
)

// loadConfig reads --config, or the nearest storyvm.toml above the story.
func loadConfig(cmd *cobra.Command, storyPath string) (config.Config, error) {
	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to get config flag: %w", err)
	}
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadOrDefault(filepath.Dir(storyPath))
	return cfg, err
}

// session is one story image attached to a fresh interpreter.
type session struct {
	path  string
	img   *image.Image
	vm    *vm.VM
	timer *observ.Timer
}

func openSession(path string, opts vm.Options) (*session, error) {
	s := &session{path: path, timer: observ.NewTimer()}
	err := s.timer.Time("load", func() (err error) {
		s.img, err = image.Load(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.vm = vm.New(opts)
	if err := s.timer.Time("attach", func() error { return s.vm.Attach(s.img) }); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// symbolizer names code addresses for backtraces. Invocation entries sit one
// word after the function's symbol.
func symbolizer(img *image.Image) func(uint32) (string, bool) {
	return func(pc uint32) (string, bool) {
		if img == nil {
			return "", false
		}
		if name, ok := img.SymbolAt(pc); ok {
			return name, true
		}
		if pc > 0 {
			return img.SymbolAt(pc - 1)
		}
		return "", false
	}
}

// reportRunError prints a failed run: the fatal error with its backtrace, or
// the exception no handler caught.
func reportRunError(w io.Writer, img *image.Image, err error) {
	var vmErr *vm.VMError
	var exc *vm.Exception
	switch {
	case errors.As(err, &vmErr):
		fmt.Fprint(w, errorLabel.Sprint("fatal: ")+vmErr.Format(symbolizer(img))) //nolint:errcheck
	case errors.As(err, &exc):
		fmt.Fprintf(w, "%s %s\n", errorLabel.Sprint("uncaught exception:"), exc.Error()) //nolint:errcheck
	default:
		fmt.Fprintf(w, "%s %v\n", errorLabel.Sprint("error:"), err) //nolint:errcheck
	}
}
