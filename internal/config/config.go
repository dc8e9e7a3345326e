package config

import (
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	// BrokerAddr is the host:port of the local bus broker.
	BrokerAddr string
	// DBPath is the sqlite file for the macro library and settings.
	DBPath string

	// HotkeyHoldFallback treats a chord held past this duration with no
	// release as implicitly released.
	HotkeyHoldFallback time.Duration
	// DefaultRecordHotkey toggles the recorder when no setting is stored.
	DefaultRecordHotkey string
}

func DefaultConfig() Config {
	return Config{
		BrokerAddr:          "127.0.0.1:4617",
		DBPath:              defaultDBPath(),
		HotkeyHoldFallback:  1500 * time.Millisecond,
		DefaultRecordHotkey: "CommandOrControl+Shift+M",
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "macrokit.db"
	}
	return filepath.Join(home, ".local", "state", "macrokit", "library.db")
}
