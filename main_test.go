package main

import (
	"log/slog"
	"testing"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		flag    string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelWarn, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"loud", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			logLevel = tt.flag
			defer func() { logLevel = "" }()

			got, err := level(slog.LevelWarn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("level() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIndent(t *testing.T) {
	got := indent("Dear member,\nyour claim is approved.\n", "  ")
	want := "  Dear member,\n  your claim is approved."
	if got != want {
		t.Errorf("indent() = %q, want %q", got, want)
	}
}
