package cfg

// Default returns the configuration used before any flag or config file has
// been parsed.
func Default() Config {
	return Config{
		Disk: DiskConfig{
			ImagePath: "snapfs.img",
			NBlocks:   4096,
		},
		Snapshot: SnapshotConfig{
			MaxBranches: 10,
			MaxFiles:    10,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/snapfs.sock",
		},
		Logging: LoggingConfig{
			Severity: INFO,
			Format:   "text",
			LogRotate: LogRotateLoggingConfig{
				MaxFileSizeMb:   512,
				BackupFileCount: 10,
				Compress:        true,
			},
		},
	}
}
