package vm

import (
	"encoding/json"
	"fmt"
)

// LogVersion is the replay log format version.
const LogVersion = 1

// LogHeader is the first line of a replay log.
type LogHeader struct {
	V     int    `json:"v"`
	Kind  string `json:"kind"`
	Image string `json:"image,omitempty"` // story image digest
	Seed  uint64 `json:"seed"`
}

// LogValue represents a typed value in the log.
type LogValue struct {
	Type string          `json:"type"`
	V    json.RawMessage `json:"v"`
}

// LogInputEvent records one answer from the host.
type LogInputEvent struct {
	Kind  string   `json:"kind"`
	Name  string   `json:"name"`
	Value LogValue `json:"value"`
}

// LogExitEvent records the final status of a run.
type LogExitEvent struct {
	Kind   string `json:"kind"`
	Status int    `json:"status"`
}

// LogPanicEvent records a fatal error.
type LogPanicEvent struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
	Msg  string `json:"msg"`
	PC   uint32 `json:"pc"`
}

// NewLogHeader creates a log header for a run of image seeded with seed.
func NewLogHeader(image string, seed uint64) LogHeader {
	return LogHeader{V: LogVersion, Kind: "header", Image: image, Seed: seed}
}

type logLine struct {
	Text string `json:"text"`
	OK   bool   `json:"ok"`
}

type logKey struct {
	Key rune `json:"key"`
	OK  bool `json:"ok"`
}

// LogLine creates a LogValue from a ReadLine answer.
func LogLine(s string, ok bool) LogValue {
	return LogValue{Type: "line", V: mustJSON(logLine{Text: s, OK: ok})}
}

// LogKey creates a LogValue from a ReadKey answer.
func LogKey(k rune, ok bool) LogValue {
	return LogValue{Type: "key", V: mustJSON(logKey{Key: k, OK: ok})}
}

// LogTime creates a LogValue from a Time answer.
func LogTime(t HostTime) LogValue {
	return LogValue{Type: "time", V: mustJSON(t)}
}

func decodeAs(v LogValue, typ string, out any) error {
	if v.Type != typ {
		return fmt.Errorf("expected value type %s, got %q", typ, v.Type)
	}
	return json.Unmarshal(v.V, out)
}

// DecodeLine decodes a LogValue written by LogLine.
func DecodeLine(v LogValue) (string, bool, error) {
	var out logLine
	if err := decodeAs(v, "line", &out); err != nil {
		return "", false, err
	}
	return out.Text, out.OK, nil
}

// DecodeKey decodes a LogValue written by LogKey.
func DecodeKey(v LogValue) (rune, bool, error) {
	var out logKey
	if err := decodeAs(v, "key", &out); err != nil {
		return 0, false, err
	}
	return out.Key, out.OK, nil
}

// DecodeTime decodes a LogValue written by LogTime.
func DecodeTime(v LogValue) (HostTime, error) {
	var out HostTime
	if err := decodeAs(v, "time", &out); err != nil {
		return HostTime{}, err
	}
	return out, nil
}

// NewLogPanicEvent creates a LogPanicEvent from a VMError.
func NewLogPanicEvent(vmErr *VMError) LogPanicEvent {
	if vmErr == nil {
		return LogPanicEvent{Kind: "panic"}
	}
	return LogPanicEvent{
		Kind: "panic",
		Code: vmErr.Code.String(),
		Msg:  vmErr.Message,
		PC:   vmErr.PC,
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
