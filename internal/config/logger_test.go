package config

import (
	"testing"

	"github.com/spf13/viper"
)

func TestNewLogger_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "info")
	v.Set("logging.format", "json")

	logger, err := NewLogger(v)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil logger")
	}
	_ = logger.Sync()
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "debug")
	v.Set("logging.format", "console")

	logger, err := NewLogger(v)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !logger.Core().Enabled(-1) { // zapcore.DebugLevel
		t.Error("debug level not enabled")
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "loud")

	if _, err := NewLogger(v); err == nil {
		t.Error("expected error for invalid level, got nil")
	}
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	v := viper.New()
	v.Set("logging.level", "info")
	v.Set("logging.format", "xml")

	if _, err := NewLogger(v); err == nil {
		t.Error("expected error for invalid format, got nil")
	}
}

func TestViperConfig_Sub(t *testing.T) {
	v := viper.New()
	v.Set("plugins.updates.max_sessions", 8)

	cfg := New(v)
	sub := cfg.Sub("plugins.updates")
	if got := sub.GetInt("max_sessions"); got != 8 {
		t.Errorf("Sub GetInt = %d, want 8", got)
	}

	// Missing section returns an empty (non-nil) config.
	empty := cfg.Sub("plugins.missing")
	if empty == nil {
		t.Fatal("Sub returned nil for missing section")
	}
	if empty.IsSet("anything") {
		t.Error("empty sub-config reports keys as set")
	}
}
