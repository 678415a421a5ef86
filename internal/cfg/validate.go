package cfg

import "fmt"

var validSeverities = map[string]bool{
	TRACE: true, DEBUG: true, INFO: true, WARNING: true, ERROR: true, OFF: true,
}

// Validate checks the invariants BindFlags can't enforce on its own,
// run as a pass after unmarshal.
func (c Config) Validate() error {
	if c.Disk.ImagePath == "" {
		return fmt.Errorf("disk.image-path must not be empty")
	}
	if c.Disk.NBlocks < 8 {
		return fmt.Errorf("disk.nblocks must be at least 8 (superblock + bitmap + root dir)")
	}
	if c.Snapshot.MaxBranches <= 0 {
		return fmt.Errorf("snapshot.max-branches must be positive")
	}
	if c.Snapshot.MaxFiles <= 0 {
		return fmt.Errorf("snapshot.max-files must be positive")
	}
	if c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket-path must not be empty")
	}
	if !validSeverities[c.Logging.Severity] {
		return fmt.Errorf("logging.severity %q is not one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF", c.Logging.Severity)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}
	return nil
}
