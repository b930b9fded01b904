package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyvm/internal/image"
	"storyvm/internal/vm"
)

// writeEchoStory writes an image whose main prints one line of input.
func writeEchoStory(t *testing.T, dir, name string) string {
	t.Helper()
	io, err := vm.DefaultRegistry().ResolveFuncSet("tads-io/030007")
	if err != nil {
		t.Fatalf("resolve tads-io: %v", err)
	}
	words := []uint32{
		vm.Stmop(vm.OpReturn),
		vm.FuncHeader(0, 0),
		vm.Const(0), vm.Const(int32(io.Index("inputLine"))), vm.Stmop(vm.OpPushBif),
		vm.Const(0), vm.Stmop(vm.OpCallBif),
		vm.Stmop(vm.OpGetR0), vm.Stmop(vm.OpPrint), vm.Stmop(vm.OpReturn),
	}
	var code []byte
	for _, w := range words {
		code = binary.LittleEndian.AppendUint32(code, w)
	}
	img := &image.Image{
		Version:      image.FormatVersion,
		Entry:        1,
		Code:         image.NewPoolDef(code, 4096),
		Data:         image.NewPoolDef(make([]byte, 4), 4096),
		Metaclasses:  []string{"tads-object/030005", "string/030008", "list/030008"},
		FunctionSets: []string{"tads-io/030007"},
		Symbols:      map[string]uint32{"main": 1},
	}
	path := filepath.Join(dir, name)
	if err := image.WriteFile(path, img); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--color", "off"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestBatchWritesTranscripts(t *testing.T) {
	dir := t.TempDir()
	a := writeEchoStory(t, dir, "a.t3")
	b := writeEchoStory(t, dir, "b.t3")
	input := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(input, []byte("hello\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "batch", "--ui", "off", "--jobs", "2", "--input", input, "--out-dir", outDir, a, b)
	if err != nil {
		t.Fatalf("batch: %v\n%s", err, out)
	}
	for _, name := range []string{"a.txt", "b.txt"} {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("read transcript: %v", err)
		}
		if string(data) != "hello" {
			t.Fatalf("%s: unexpected transcript %q", name, data)
		}
	}
	if !strings.Contains(out, "ok") || !strings.Contains(out, a) || !strings.Contains(out, b) {
		t.Fatalf("summary does not list both stories:\n%s", out)
	}
}

func TestInspectPretty(t *testing.T) {
	story := writeEchoStory(t, t.TempDir(), "echo.t3")
	out, err := execute(t, "inspect", "--format", "pretty", "--disasm", story)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{
		"entry pc=000001",
		"tads-io/030007",
		"000001 main",
		"RETURN",
		"<main>",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output lacks %q:\n%s", want, out)
		}
	}
}

func TestInspectJSON(t *testing.T) {
	story := writeEchoStory(t, t.TempDir(), "echo.t3")
	out, err := execute(t, "inspect", "--format", "json", story)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var rep inspectReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.Entry != 1 || rep.CodeBytes != 40 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(rep.FunctionSets) != 1 || rep.FunctionSets[0].Error != "" {
		t.Fatalf("function set not resolved: %+v", rep.FunctionSets)
	}
}

func TestInspectReportsUnknownDependency(t *testing.T) {
	img := &image.Image{
		Metaclasses:  []string{"no-such-class/010000"},
		FunctionSets: []string{"tads-gen/030008"},
	}
	rep := buildInspectReport("x.t3", img, vm.DefaultRegistry())
	if rep.Metaclasses[0].Error == "" {
		t.Fatalf("expected an error for an unknown metaclass")
	}
	if rep.FunctionSets[0].Resolved == "" {
		t.Fatalf("expected tads-gen to resolve")
	}
}

func TestReadUIMode(t *testing.T) {
	cases := []struct {
		in   string
		want uiMode
	}{
		{"", uiModeAuto},
		{"auto", uiModeAuto},
		{" ON ", uiModeOn},
		{"off", uiModeOff},
	}
	for _, tc := range cases {
		got, err := readUIMode(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("readUIMode(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Fatalf("expected an error for an unknown mode")
	}
}

func TestSymbolizerFindsInvocationEntry(t *testing.T) {
	img := &image.Image{Symbols: map[string]uint32{"main": 1}}
	sym := symbolizer(img)
	for _, pc := range []uint32{1, 2} {
		if name, ok := sym(pc); !ok || name != "main" {
			t.Fatalf("symbolizer(%d) = %q, %v", pc, name, ok)
		}
	}
	if _, ok := sym(5); ok {
		t.Fatalf("symbolizer(5) should not resolve")
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if payload.Tool != "storyvm" || payload.VM != "1.0.6" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}
