package logger

import (
	"testing"

	"go.uber.org/zap"

	"github.com/rl1809/shipstore/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		cfg     config.LogConfig
		debug   bool
		warnOff bool
	}{
		{config.LogConfig{Level: "debug", Format: "console"}, true, false},
		{config.LogConfig{Level: "info", Format: "json"}, false, false},
		{config.LogConfig{Level: "error", Format: "json"}, false, true},
	}

	for _, tt := range tests {
		log, err := New(tt.cfg)
		if err != nil {
			t.Fatalf("New(%+v) failed: %v", tt.cfg, err)
		}
		if got := log.Core().Enabled(zap.DebugLevel); got != tt.debug {
			t.Errorf("%+v: debug enabled = %v, want %v", tt.cfg, got, tt.debug)
		}
		if got := !log.Core().Enabled(zap.WarnLevel); got != tt.warnOff {
			t.Errorf("%+v: warn disabled = %v, want %v", tt.cfg, got, tt.warnOff)
		}
	}
}
