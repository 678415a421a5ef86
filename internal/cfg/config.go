// Package cfg defines snapfs's configuration surface: the on-disk image to
// serve, snapshot graph limits, the IPC socket to listen on, and logging.
// Structure and the BindFlags/Validate split follow the usual cobra/viper
// cfg/config.go and cfg/validate.go.
package cfg

import (
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Severity levels accepted by LoggingConfig.Severity (WARNING rather
// than WARN, to match the slog level names used elsewhere here).
const (
	TRACE   = "TRACE"
	DEBUG   = "DEBUG"
	INFO    = "INFO"
	WARNING = "WARNING"
	ERROR   = "ERROR"
	OFF     = "OFF"
)

// Config is the fully parsed configuration for snapfsd/snapctl.
type Config struct {
	Disk     DiskConfig     `yaml:"disk"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	IPC      IPCConfig      `yaml:"ipc"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DiskConfig names the backing image file and its block count.
type DiskConfig struct {
	ImagePath string `yaml:"image-path"`
	NBlocks   uint32 `yaml:"nblocks"`
}

// SnapshotConfig bounds the fixed-capacity arrays in a snapshot header.
type SnapshotConfig struct {
	MaxBranches int `yaml:"max-branches"`
	MaxFiles    int `yaml:"max-files"`
}

// IPCConfig names the unix domain socket clients dial.
type IPCConfig struct {
	SocketPath string `yaml:"socket-path"`
}

// LoggingConfig controls severity, format, and rotation.
type LoggingConfig struct {
	Severity  string                 `yaml:"severity"`
	Format    string                 `yaml:"format"`
	Filename  string                 `yaml:"filename"`
	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

// LogRotateLoggingConfig is handed directly to lumberjack.Logger.
type LogRotateLoggingConfig struct {
	MaxFileSizeMb   int  `yaml:"max-file-size-mb"`
	BackupFileCount int  `yaml:"backup-file-count"`
	Compress        bool `yaml:"compress"`
}

// BindFlags wires every Config field to a pflag/viper flag, one
// viper.BindPFlag call per field.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.String("disk.image-path", "snapfs.img", "Path to the backing disk image.")
	flagSet.Uint32("disk.nblocks", 4096, "Total number of blocks in the disk image.")
	flagSet.Int("snapshot.max-branches", 10, "Maximum children per snapshot node.")
	flagSet.Int("snapshot.max-files", 10, "Maximum shadow/created entries tracked per snapshot.")
	flagSet.String("ipc.socket-path", "/tmp/snapfs.sock", "Unix domain socket to serve requests on.")
	flagSet.String("logging.severity", INFO, "One of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	flagSet.String("logging.format", "text", "One of text, json.")
	flagSet.String("logging.filename", "", "Log file path, or empty for stderr.")
	flagSet.Int("logging.log-rotate.max-file-size-mb", 512, "Rotate after this many megabytes.")
	flagSet.Int("logging.log-rotate.backup-file-count", 10, "Rotated files to retain.")
	flagSet.Bool("logging.log-rotate.compress", true, "Gzip rotated log files.")

	for _, name := range []string{
		"disk.image-path", "disk.nblocks",
		"snapshot.max-branches", "snapshot.max-files",
		"ipc.socket-path",
		"logging.severity", "logging.format", "logging.filename",
		"logging.log-rotate.max-file-size-mb", "logging.log-rotate.backup-file-count",
		"logging.log-rotate.compress",
	} {
		if err := viper.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return err
		}
	}

	return nil
}

// Unmarshal decodes viper's current state into a Config. The decoder is
// pointed at the yaml tags so the flag names, the config-file keys, and
// the struct fields all share one spelling.
func Unmarshal(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return Config{}, err
	}
	return c, nil
}
