package main

import (
	"fmt"
	"hash/crc32"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"storyvm/internal/config"
	"storyvm/internal/savestate"
	"storyvm/internal/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <story.t3>",
	Short: "Run a story image on the console",
	Long: `Load a story image and run it interactively. SAVE and RESTORE use the
save file; inputs can be recorded to or replayed from an NDJSON log.`,
	Args: cobra.ExactArgs(1),
	RunE: runStory,
}

func init() {
	f := runCmd.Flags()
	f.Uint64("seed", 0, "random seed (default from config)")
	f.Int("safety", -1, "file safety level 0-4 (default from config)")
	f.String("sandbox", "", "sandbox directory for story file access")
	f.String("charset", "", "console character set")
	f.String("pool", "", "constant pool layout (auto|flat|paged)")
	f.String("save", "", "save file for SAVE/RESTORE (default <story>.sav)")
	f.String("record", "", "record host inputs to this NDJSON log")
	f.String("replay", "", "replay host inputs from this NDJSON log")
	f.String("debug", "", "debugger command script (- for interactive on stdin)")
	f.StringArray("break", nil, "breakpoint at pc=N or symbol (repeatable, implies --debug -)")
	f.Bool("single-step", false, "trace every instruction to stderr")
	f.Bool("trace-stack", false, "include the operand stack in instruction traces")
	f.Int("width", -1, "wrap column for story output (0 disables, default terminal width)")
}

// applyRunFlags overrides configuration values with flags the user set.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	var err error
	if f.Changed("seed") {
		if cfg.VM.Seed, err = f.GetUint64("seed"); err != nil {
			return err
		}
	}
	if f.Changed("safety") {
		if cfg.IO.Safety, err = f.GetInt("safety"); err != nil {
			return err
		}
	}
	if f.Changed("sandbox") {
		if cfg.IO.Sandbox, err = f.GetString("sandbox"); err != nil {
			return err
		}
	}
	if f.Changed("charset") {
		if cfg.IO.Charset, err = f.GetString("charset"); err != nil {
			return err
		}
	}
	if f.Changed("pool") {
		if cfg.Pool.Variant, err = f.GetString("pool"); err != nil {
			return err
		}
	}
	if f.Changed("single-step") {
		if cfg.Trace.SingleStep, err = f.GetBool("single-step"); err != nil {
			return err
		}
	}
	if f.Changed("trace-stack") {
		if cfg.Trace.TraceStack, err = f.GetBool("trace-stack"); err != nil {
			return err
		}
	}
	return cfg.Validate()
}

func runStory(cmd *cobra.Command, args []string) (err error) {
	storyPath := args[0]
	cfg, err := loadConfig(cmd, storyPath)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &cfg); err != nil {
		return err
	}

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	tr, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	failed := false
	defer func() { tr.close(cmd, failed) }()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts.Tracer = tr.tracer
	opts.TraceOut = os.Stderr

	savePath, _ := cmd.Flags().GetString("save")
	if savePath == "" {
		savePath = strings.TrimSuffix(storyPath, ".t3") + ".sav"
	}
	opts.Saves = savestate.NewFileStore(savePath)

	s, err := openSession(storyPath, opts)
	if err != nil {
		failed = true
		return err
	}
	m := s.vm

	chars, err := cfg.Charset()
	if err != nil {
		return err
	}
	console := vm.NewConsoleHost(os.Stdin, os.Stdout, chars)
	if width, _ := cmd.Flags().GetInt("width"); width >= 0 {
		console.SetWidth(width)
	}
	var host vm.Host = console

	closeLogs, host, err := setupRecordReplay(cmd, s, cfg.VM.Seed, host)
	if err != nil {
		return err
	}
	defer closeLogs()
	m.SetHost(host)

	closeScript, err := setupDebugger(cmd, m)
	if err != nil {
		return err
	}
	defer closeScript()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var status int
	runErr := s.timer.Time("run", func() error {
		var rerr error
		status, rerr = m.Run(ctx)
		return rerr
	})
	if runErr != nil {
		failed = status == vm.StatusFatal
		reportRunError(os.Stderr, s.img, runErr)
	}
	if timings, _ := cmd.Root().PersistentFlags().GetBool("timings"); timings {
		fmt.Fprint(os.Stderr, s.timer.Summary()) //nolint:errcheck
	}
	if status != vm.StatusOK {
		return &exitStatus{code: status}
	}
	return nil
}

// setupRecordReplay wraps host for --record or --replay. A replay reseeds the
// interpreter from the log header.
func setupRecordReplay(cmd *cobra.Command, s *session, seed uint64, host vm.Host) (func(), vm.Host, error) {
	recordPath, _ := cmd.Flags().GetString("record")
	replayPath, _ := cmd.Flags().GetString("replay")
	noop := func() {}
	switch {
	case recordPath != "" && replayPath != "":
		return noop, nil, fmt.Errorf("--record and --replay are mutually exclusive")
	case replayPath != "":
		data, err := os.ReadFile(replayPath)
		if err != nil {
			return noop, nil, err
		}
		rp := vm.NewReplayerFromBytes(data)
		if err := rp.Validate(); err != nil {
			return noop, nil, fmt.Errorf("%s: %w", replayPath, err)
		}
		if want := imageDigest(s); rp.Header().Image != "" && rp.Header().Image != want {
			return noop, nil, fmt.Errorf("%s: recorded from image %s, not %s", replayPath, rp.Header().Image, want)
		}
		s.vm.Seed(rp.Header().Seed)
		s.vm.SetReplayer(rp)
		return noop, vm.NewReplayHost(host, s.vm, rp), nil
	case recordPath != "":
		f, err := os.Create(recordPath)
		if err != nil {
			return noop, nil, err
		}
		rec := vm.NewRecorder(f, vm.NewLogHeader(imageDigest(s), seed))
		s.vm.SetRecorder(rec)
		closeLog := func() {
			if err := rec.Err(); err != nil {
				printFatal(fmt.Errorf("record: %w", err))
			}
			if err := f.Close(); err != nil {
				printFatal(fmt.Errorf("record: %w", err))
			}
		}
		return closeLog, vm.NewRecordingHost(host, rec), nil
	}
	return noop, host, nil
}

func imageDigest(s *session) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(s.img.Raw))
}

// setupDebugger installs the line debugger for --debug and --break.
func setupDebugger(cmd *cobra.Command, m *vm.VM) (func(), error) {
	closeScript := func() {}
	script, _ := cmd.Flags().GetString("debug")
	breaks, _ := cmd.Flags().GetStringArray("break")
	if script == "" && len(breaks) == 0 {
		return closeScript, nil
	}
	var dbg *vm.Debugger
	if script == "" || script == "-" {
		dbg = vm.NewDebugger(os.Stdin, os.Stderr, isTerminal(os.Stdin))
	} else {
		f, err := os.Open(script)
		if err != nil {
			return closeScript, err
		}
		// The script is read lazily while the story runs.
		closeScript = func() { f.Close() } //nolint:errcheck,gosec
		dbg = vm.NewDebugger(f, os.Stderr, false)
	}
	m.SetDebugHook(dbg, len(breaks) == 0)
	for _, spec := range breaks {
		pc, sym, err := vm.ParseBreakpointSpec(spec)
		if err != nil {
			return closeScript, fmt.Errorf("--break %q: %w", spec, err)
		}
		if sym == "" {
			m.Breakpoints().AddAddress(pc)
			continue
		}
		if _, ok := m.Image().Symbols[sym]; !ok {
			return closeScript, fmt.Errorf("--break %q: unknown symbol", spec)
		}
		if _, err := m.Breakpoints().AddSymbol(sym); err != nil {
			return closeScript, err
		}
	}
	return closeScript, nil
}
