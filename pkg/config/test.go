package config

import "time"

func loadTestConfig(cfg *Config) {
	cfg.DatabaseBusyTimeout = time.Second
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 10 * time.Millisecond
	cfg.DatabaseFilePath = ":memory:"
	cfg.ServerHost = "127.0.0.1"
	// Port 0 lets the listener pick a free port.
	cfg.ServerPort = 0
}
