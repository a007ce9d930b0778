package logger

import (
	"context"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewZapLogger(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "json format with debug level", config: Config{Level: DebugLevel, Format: JSONFormat}},
		{name: "text format with info level", config: Config{Level: InfoLevel, Format: TextFormat}},
		{name: "json format with error level", config: Config{Level: ErrorLevel, Format: JSONFormat}},
		{name: "default to info level for invalid level", config: Config{Level: "invalid", Format: JSONFormat}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewZapLogger(tt.config)
			if err != nil {
				t.Fatalf("NewZapLogger() error = %v", err)
			}
			if logger == nil {
				t.Fatal("NewZapLogger() returned nil logger")
			}
			_ = logger.Sync()
		})
	}
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name     string
		level    zapcore.Level
		logFunc  func(Logger)
		expected bool
	}{
		{name: "info level drops debug", level: zapcore.InfoLevel, logFunc: func(l Logger) { l.Debug("m") }, expected: false},
		{name: "info level keeps info", level: zapcore.InfoLevel, logFunc: func(l Logger) { l.Info("m") }, expected: true},
		{name: "error level drops warn", level: zapcore.ErrorLevel, logFunc: func(l Logger) { l.Warn("m") }, expected: false},
		{name: "error level keeps error", level: zapcore.ErrorLevel, logFunc: func(l Logger) { l.Error("m") }, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(tt.level)
			tt.logFunc(NewZapLoggerWithCore(core))
			if got := logs.Len() == 1; got != tt.expected {
				t.Fatalf("logged = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestZapLogger_WithAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := NewZapLoggerWithCore(core)

	base.With("unit_of_work_id", "abc").Info("child message")
	base.Info("parent message")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["unit_of_work_id"]; got != "abc" {
		t.Fatalf("child field = %v, want abc", got)
	}
	if _, ok := entries[1].ContextMap()["unit_of_work_id"]; ok {
		t.Fatal("parent logger must not carry child fields")
	}
}

func TestZapLogger_WithContext(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
	}{
		{name: "context with request ID", ctx: ContextWithRequestID(context.Background(), "req-123"), requestID: "req-123"},
		{name: "context without request ID", ctx: context.Background()},
		{name: "nil context", ctx: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			NewZapLoggerWithCore(core).WithContext(tt.ctx).Info("message")

			got, _ := logs.All()[0].ContextMap()["request_id"].(string)
			if got != tt.requestID {
				t.Fatalf("request_id = %q, want %q", got, tt.requestID)
			}
		})
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.With("k", "v").WithContext(context.Background()).Error("ignored")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: DebugLevel},
		{input: "info", want: InfoLevel},
		{input: "warn", want: WarnLevel},
		{input: "warning", want: WarnLevel},
		{input: "error", want: ErrorLevel},
		{input: "invalid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseLogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    LogFormat
		wantErr bool
	}{
		{input: "json", want: JSONFormat},
		{input: "text", want: TextFormat},
		{input: "console", want: TextFormat},
		{input: "yaml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseLogFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}
