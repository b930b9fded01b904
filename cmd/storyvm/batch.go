package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storyvm/internal/config"
	"storyvm/internal/observ"
	"storyvm/internal/savestate"
	"storyvm/internal/trace"
	"storyvm/internal/ui"
	"storyvm/internal/vm"
)

var batchCmd = &cobra.Command{
	Use:   "batch [flags] <story.t3>...",
	Short: "Run several story images concurrently against scripted input",
	Long: `Run each story in its own interpreter instance, feeding it the lines of
--input. Transcripts go to --out-dir when set. The exit status is the highest
status of any story.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.Int("jobs", 0, "stories run at once (0 = GOMAXPROCS)")
	f.String("input", "", "file whose lines are the input of every story")
	f.String("out-dir", "", "directory for <story>.txt transcripts")
	f.String("ui", "auto", "progress view (auto|on|off)")
}

// batchResult is the outcome of one story.
type batchResult struct {
	story  string
	status int
	err    error
	timer  *observ.Timer
}

// batchRunner runs stories with shared settings.
type batchRunner struct {
	cfg    config.Config
	input  []byte
	outDir string
	tracer trace.Tracer
	events chan<- ui.Event
}

func runBatch(cmd *cobra.Command, args []string) error {
	jobs, _ := cmd.Flags().GetInt("jobs")
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	modeStr, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(modeStr)
	if err != nil {
		return err
	}
	quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet")

	cfg, err := loadConfig(cmd, args[0])
	if err != nil {
		return err
	}
	r := &batchRunner{cfg: cfg}
	if path, _ := cmd.Flags().GetString("input"); path != "" {
		if r.input, err = os.ReadFile(path); err != nil {
			return err
		}
	}
	if r.outDir, _ = cmd.Flags().GetString("out-dir"); r.outDir != "" {
		if err := os.MkdirAll(r.outDir, 0o755); err != nil {
			return err
		}
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
	r.tracer = tr.tracer

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var results []batchResult
	if !quiet && shouldUseTUI(mode) {
		results, err = runBatchWithUI(ctx, r, args, jobs)
	} else {
		results, err = r.runAll(ctx, args, jobs)
	}
	worst := 0
	for _, res := range results {
		worst = max(worst, res.status)
	}
	tr.close(cmd, worst == vm.StatusFatal)
	if err != nil {
		return err
	}

	if !quiet {
		printBatchSummary(cmd.OutOrStdout(), results)
	}
	if timings, _ := cmd.Root().PersistentFlags().GetBool("timings"); timings {
		for _, res := range results {
			fmt.Fprintf(os.Stderr, "%s\n%s", res.story, res.timer.Summary()) //nolint:errcheck
		}
	}
	if worst != vm.StatusOK {
		return &exitStatus{code: worst}
	}
	return nil
}

// runAll runs every story, at most jobs at a time. A failing story does not
// stop the others; only cancellation of ctx does.
func (r *batchRunner) runAll(ctx context.Context, stories []string, jobs int) ([]batchResult, error) {
	span := trace.Begin(r.tracer, trace.ScopeHost, "batch", 0).
		WithExtra("stories", fmt.Sprint(len(stories)))
	defer span.End("")

	results := make([]batchResult, len(stories))
	g, gctx := errgroup.WithContext(trace.WithSpan(ctx, r.tracer, span.ID()))
	g.SetLimit(min(jobs, len(stories)))
	for i, story := range stories {
		r.emit(ui.Event{Story: story, Phase: ui.PhaseQueued})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.runOne(gctx, story)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func (r *batchRunner) runOne(ctx context.Context, story string) batchResult {
	res := batchResult{story: story, timer: observ.NewTimer()}
	gid := trace.CurrentGoroutine()
	fail := func(err error) batchResult {
		res.status, res.err = vm.StatusFatal, err
		r.emit(ui.Event{Story: story, Phase: ui.PhaseFailed, Status: res.status, Detail: err.Error()})
		return res
	}

	r.emit(ui.Event{Story: story, Phase: ui.PhaseLoading})
	opts, err := r.cfg.Options()
	if err != nil {
		return fail(err)
	}
	opts.Tracer = r.tracer
	opts.Saves = &savestate.MemStore{}
	// Instruction traces of concurrent stories would interleave.
	opts.SingleStep = false

	s, err := openSession(story, opts)
	if err != nil {
		return fail(err)
	}
	res.timer = s.timer

	out, closeOut, err := r.transcript(story)
	if err != nil {
		return fail(err)
	}
	defer closeOut()
	chars, err := r.cfg.Charset()
	if err != nil {
		return fail(err)
	}
	host := vm.NewConsoleHost(bytes.NewReader(r.input), out, chars)
	host.SetWidth(0)
	s.vm.SetHost(host)

	r.emit(ui.Event{Story: story, Phase: ui.PhaseRunning})
	res.err = s.timer.Time("run", func() error {
		var rerr error
		res.status, rerr = s.vm.Run(ctx)
		return rerr
	})
	if res.err != nil {
		var sb strings.Builder
		reportRunError(&sb, s.img, res.err)
		fmt.Fprint(out, "\n"+sb.String()) //nolint:errcheck
	}
	if res.status == vm.StatusFatal {
		r.appendTrace(out, gid)
	}
	detail := ""
	if res.err != nil {
		detail = firstLine(res.err.Error())
	}
	r.emit(ui.Event{Story: story, Phase: ui.PhaseDone, Status: res.status, Detail: detail})
	return res
}

// transcript opens the story's output file, or discards output.
func (r *batchRunner) transcript(story string) (io.Writer, func(), error) {
	if r.outDir == "" {
		return io.Discard, func() {}, nil
	}
	name := strings.TrimSuffix(filepath.Base(story), filepath.Ext(story)) + ".txt"
	f, err := os.Create(filepath.Join(r.outDir, name))
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil //nolint:errcheck,gosec
}

// appendTrace writes the story's own events from the trace ring, if tracing
// keeps one.
func (r *batchRunner) appendTrace(out io.Writer, gid uint64) {
	ring := trace.RingOf(r.tracer)
	if ring == nil {
		return
	}
	events := ring.SnapshotGoroutine(gid)
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(out, "trace: last events before failure:") //nolint:errcheck
	trace.WriteEvents(out, events, trace.FormatText)        //nolint:errcheck,gosec
}

func (r *batchRunner) emit(ev ui.Event) {
	if r.events != nil {
		r.events <- ev
	}
}

func printBatchSummary(w io.Writer, results []batchResult) {
	for _, res := range results {
		label := okLabel.Sprint("ok  ")
		if res.status != vm.StatusOK {
			label = errorLabel.Sprintf("exit %d", res.status)
		}
		line := fmt.Sprintf("%s  %s", label, res.story)
		if res.err != nil {
			line += "  " + firstLine(res.err.Error())
		}
		fmt.Fprintln(w, line) //nolint:errcheck
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
