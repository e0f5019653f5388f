package logger

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"fatal":   FATAL,
		"bogus":   INFO,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultLoggerFormatsMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := current()
	SetDefaultLogger(NewFromZap(zap.New(core)))
	t.Cleanup(func() { SetDefaultLogger(prev) })

	Info("intent %s moved to %s", "i-1", "Submitted")
	With(zap.String("tx_hash", "0xabc")).Warn("reorg at block %d", 10)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "intent i-1 moved to Submitted" {
		t.Fatalf("message = %q", entries[0].Message)
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["tx_hash"] != "0xabc" {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

type opts struct{ level, output, file string }

func (o opts) GetLevel() string  { return o.level }
func (o opts) GetOutput() string { return o.output }
func (o opts) GetFile() string   { return o.file }

func TestInitOutputs(t *testing.T) {
	prev := current()
	t.Cleanup(func() { SetDefaultLogger(prev) })

	if _, err := Init(opts{level: "debug", output: "stderr"}); err != nil {
		t.Fatalf("stderr: %v", err)
	}
	if _, err := Init(opts{level: "info", output: "file", file: filepath.Join(t.TempDir(), "app.log")}); err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, err := Init(opts{output: "file"}); err == nil {
		t.Fatalf("expected error for file output without path")
	}
	if _, err := Init(opts{output: "syslog"}); err == nil {
		t.Fatalf("expected error for unsupported output")
	}
}
