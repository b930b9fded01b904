package vm

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"storyvm/internal/charmap"
)

// FileMode selects how a host file is opened.
type FileMode uint8

const (
	FileRead FileMode = iota
	FileWrite
	FileReadWrite
)

func (m FileMode) String() string {
	switch m {
	case FileRead:
		return "read"
	case FileWrite:
		return "write"
	default:
		return "readwrite"
	}
}

// FileType selects the record format of a file opened by bytecode.
type FileType uint8

const (
	FileData FileType = iota // tagged data-mode values
	FileText                 // lines of text
	FileRaw                  // bytes
)

// FileHandle is an open host file.
type FileHandle interface {
	io.ReadWriteSeeker
	io.Closer
}

// TimeKind selects the form of a host time query.
type TimeKind uint8

const (
	TimeDate  TimeKind = iota // calendar tuple
	TimeTicks                 // milliseconds since the host started
)

// HostTime is the answer to a time query. Date holds year, month, day,
// weekday (1 is Sunday), hour, minute and second.
type HostTime struct {
	Date  [7]int
	Ticks int64
}

// Host provides the interface between the VM and the outside world.
type Host interface {
	// Output displays text.
	Output(s string)
	// ReadLine reads one line of input without its terminator. It reports
	// false at end of input.
	ReadLine() (string, bool)
	// ReadKey reads one keystroke.
	ReadKey() (rune, bool)
	Time(kind TimeKind) HostTime
	OpenFile(path string, mode FileMode, ftype FileType) (FileHandle, error)
}

// Styler is implemented by hosts that render text styles.
type Styler interface {
	SetStyle(style int)
}

// MediaHost is implemented by hosts that can show images and play sounds.
type MediaHost interface {
	ShowImage(name string, pos int)
	PlaySound(name string)
}

// ConsoleHost implements Host on a terminal or pipes.
type ConsoleHost struct {
	in    *bufio.Reader
	out   io.Writer
	chars charmap.Mapper
	start time.Time
	now   func() time.Time

	width int // wrap column, 0 disables wrapping
	col   int
}

// NewConsoleHost creates a console host. Text is transcoded through chars;
// output is word-wrapped to the terminal width when out is a terminal.
func NewConsoleHost(in io.Reader, out io.Writer, chars charmap.Mapper) *ConsoleHost {
	if chars == nil {
		chars = charmap.UTF8
	}
	h := &ConsoleHost{
		in:    bufio.NewReader(in),
		out:   out,
		chars: chars,
		start: time.Now(),
		now:   time.Now,
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec // fd fits in int
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 { //nolint:gosec // fd fits in int
			h.width = w
		}
	}
	return h
}

// SetWidth overrides the wrap column.
func (h *ConsoleHost) SetWidth(w int) { h.width = w }

func (h *ConsoleHost) Output(s string) {
	if h.width > 0 {
		s = h.wrap(s)
	}
	_, _ = io.WriteString(h.out, h.chars.ToHost(s))
}

// wrap breaks s at spaces so no line exceeds the display width, continuing
// from the column the previous output ended at.
func (h *ConsoleHost) wrap(s string) string {
	var sb strings.Builder
	for i, line := range strings.Split(s, "\n") {
		if i > 0 {
			sb.WriteByte('\n')
			h.col = 0
		}
		for j, word := range strings.Split(line, " ") {
			w := runewidth.StringWidth(word)
			if j > 0 {
				if h.col+1+w > h.width {
					sb.WriteByte('\n')
					h.col = 0
				} else {
					sb.WriteByte(' ')
					h.col++
				}
			}
			sb.WriteString(word)
			h.col += w
		}
	}
	return sb.String()
}

func (h *ConsoleHost) ReadLine() (string, bool) {
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	h.col = 0
	return h.chars.FromHost(strings.TrimRight(line, "\r\n")), true
}

func (h *ConsoleHost) ReadKey() (rune, bool) {
	r, _, err := h.in.ReadRune()
	if err != nil {
		return 0, false
	}
	return r, true
}

func (h *ConsoleHost) Time(kind TimeKind) HostTime {
	now := h.now()
	if kind == TimeTicks {
		return HostTime{Ticks: now.Sub(h.start).Milliseconds()}
	}
	return dateTuple(now)
}

func dateTuple(t time.Time) HostTime {
	return HostTime{Date: [7]int{
		t.Year(), int(t.Month()), t.Day(), int(t.Weekday()) + 1,
		t.Hour(), t.Minute(), t.Second(),
	}}
}

func (h *ConsoleHost) OpenFile(path string, mode FileMode, _ FileType) (FileHandle, error) {
	flag := os.O_RDONLY
	switch mode {
	case FileWrite:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case FileReadWrite:
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644) //nolint:gosec // access is checked against the safety level
	if err != nil {
		return nil, err
	}
	return f, nil
}

// TestHost implements Host with scripted input and captured output.
type TestHost struct {
	Out    strings.Builder
	lines  []string
	keys   []rune
	Clock  HostTime
	Files  map[string]*MemFile
	Styles []int
}

// NewTestHost creates a test host that answers ReadLine from lines.
func NewTestHost(lines ...string) *TestHost {
	return &TestHost{lines: lines, Files: make(map[string]*MemFile)}
}

// PushKeys queues keystrokes for ReadKey.
func (h *TestHost) PushKeys(keys ...rune) { h.keys = append(h.keys, keys...) }

func (h *TestHost) Output(s string) { h.Out.WriteString(s) }

func (h *TestHost) ReadLine() (string, bool) {
	if len(h.lines) == 0 {
		return "", false
	}
	l := h.lines[0]
	h.lines = h.lines[1:]
	return l, true
}

func (h *TestHost) ReadKey() (rune, bool) {
	if len(h.keys) == 0 {
		return 0, false
	}
	k := h.keys[0]
	h.keys = h.keys[1:]
	return k, true
}

func (h *TestHost) Time(TimeKind) HostTime { return h.Clock }

func (h *TestHost) SetStyle(style int) { h.Styles = append(h.Styles, style) }

// OpenFile serves files from memory; a file opened for writing is created or
// truncated.
func (h *TestHost) OpenFile(path string, mode FileMode, _ FileType) (FileHandle, error) {
	f, ok := h.Files[path]
	switch {
	case mode == FileWrite:
		f = &MemFile{}
		h.Files[path] = f
	case !ok && mode == FileReadWrite:
		f = &MemFile{}
		h.Files[path] = f
	case !ok:
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	f.pos, f.closed = 0, false
	return f, nil
}

// MemFile is an in-memory FileHandle.
type MemFile struct {
	buf    []byte
	pos    int64
	closed bool
}

// Bytes returns the file contents.
func (f *MemFile) Bytes() []byte { return bytes.Clone(f.buf) }

func (f *MemFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *MemFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, os.ErrClosed
	}
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		f.buf = append(f.buf, make([]byte, end-int64(len(f.buf)))...)
	}
	copy(f.buf[f.pos:], p)
	f.pos = end
	return len(p), nil
}

func (f *MemFile) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(len(f.buf))
	default:
		return 0, errors.New("memfile: bad whence")
	}
	if base+offset < 0 {
		return 0, errors.New("memfile: negative position")
	}
	f.pos = base + offset
	return f.pos, nil
}

func (f *MemFile) Close() error {
	f.closed = true
	return nil
}

// RecordingHost wraps another host and records every input for replay.
type RecordingHost struct {
	Host
	rec *Recorder
}

func NewRecordingHost(h Host, rec *Recorder) *RecordingHost {
	return &RecordingHost{Host: h, rec: rec}
}

func (r *RecordingHost) ReadLine() (string, bool) {
	s, ok := r.Host.ReadLine()
	r.rec.RecordInput("read_line", LogLine(s, ok))
	return s, ok
}

func (r *RecordingHost) ReadKey() (rune, bool) {
	k, ok := r.Host.ReadKey()
	r.rec.RecordInput("read_key", LogKey(k, ok))
	return k, ok
}

func (r *RecordingHost) Time(kind TimeKind) HostTime {
	t := r.Host.Time(kind)
	r.rec.RecordInput("time", LogTime(t))
	return t
}

// ReplayHost serves inputs from a recorded log and raises a fatal error on
// any divergence. Output and files still go to the wrapped host.
type ReplayHost struct {
	Host
	vm *VM
	rp *Replayer
}

func NewReplayHost(h Host, vm *VM, rp *Replayer) *ReplayHost {
	return &ReplayHost{Host: h, vm: vm, rp: rp}
}

func (r *ReplayHost) ReadLine() (string, bool) {
	ev := r.rp.ConsumeInput(r.vm, "read_line")
	s, ok, err := DecodeLine(ev.Value)
	if err != nil {
		panic(r.vm.eb.invalidReplayLog(err.Error()))
	}
	return s, ok
}

func (r *ReplayHost) ReadKey() (rune, bool) {
	ev := r.rp.ConsumeInput(r.vm, "read_key")
	k, ok, err := DecodeKey(ev.Value)
	if err != nil {
		panic(r.vm.eb.invalidReplayLog(err.Error()))
	}
	return k, ok
}

func (r *ReplayHost) Time(TimeKind) HostTime {
	ev := r.rp.ConsumeInput(r.vm, "time")
	t, err := DecodeTime(ev.Value)
	if err != nil {
		panic(r.vm.eb.invalidReplayLog(err.Error()))
	}
	return t
}
