package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gamedb/pkg/backend"
	"gamedb/pkg/cluster"
	"gamedb/pkg/types"
)

// Config - корневая структура конфигурации приложения.
// Файл читается через goccy/go-yaml, см. cmd/gamedb/init.go.
type Config struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Server      ServerConfig      `yaml:"http-server"`
	Partition   PartitionConfig   `yaml:"partition"`
	Nodes       []NodeConfig      `yaml:"nodes"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Replication ReplicationConfig `yaml:"replication"`
	DB          DBConfig          `yaml:"db"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type PartitionConfig struct {
	ThresholdYear int `yaml:"threshold_year"`
}

// NodeConfig describes one member of the fixed topology and where its
// records live.
type NodeConfig struct {
	ID     string `yaml:"id"`
	Role   string `yaml:"role"`
	Range  string `yaml:"range"`
	Driver string `yaml:"driver"`
	// DSN is the sqlite file or leveldb directory.
	DSN string `yaml:"dsn"`
	// Addr is the base URL of the gamedb process that hosts the node when
	// Driver is http.
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`
}

type ReconcilerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// JournalPath enables the durable retry journal. Empty keeps the queue
	// in memory only.
	JournalPath string `yaml:"journal_path"`
	WarnDepth   int    `yaml:"warn_depth"`
}

type ReplicationConfig struct {
	Buffer int `yaml:"buffer"`
}

type DBConfig struct {
	CheckMirrorUniqueness bool `yaml:"check_mirror_uniqueness"`
}

// Default returns a baseline development config: three in-memory nodes in
// one process.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Partition: PartitionConfig{
			ThresholdYear: cluster.DefaultThresholdYear,
		},
		Nodes: []NodeConfig{
			{ID: "mirror", Role: string(types.RoleMirror), Driver: backend.DriverMemory},
			{ID: "shardA", Role: string(types.RoleShard), Range: string(cluster.RangeLower), Driver: backend.DriverMemory},
			{ID: "shardB", Role: string(types.RoleShard), Range: string(cluster.RangeUpper), Driver: backend.DriverMemory},
		},
		Reconciler: ReconcilerConfig{
			Interval:       5 * time.Second,
			AttemptTimeout: 3 * time.Second,
			WarnDepth:      100,
		},
		Replication: ReplicationConfig{
			Buffer: 256,
		},
	}
}

// Validate checks ranges and the topology. All problems are reported at once.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logger.level: unknown level %q", c.Logger.Level)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("http-server.port: %d out of range", c.Server.Port)
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		add("http-server.read_header_timeout: must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("http-server.shutdown_timeout: must be positive")
	}

	if c.Partition.ThresholdYear < 1 || c.Partition.ThresholdYear > 9999 {
		add("partition.threshold_year: %d out of range", c.Partition.ThresholdYear)
	}

	if _, err := c.Topology(); err != nil {
		add("nodes: %w", err)
	}
	for _, n := range c.Nodes {
		if err := n.validateDriver(); err != nil {
			add("nodes[%s]: %w", n.ID, err)
		}
	}

	if c.Reconciler.Interval <= 0 {
		add("reconciler.interval: must be positive")
	}
	if c.Reconciler.AttemptTimeout <= 0 {
		add("reconciler.attempt_timeout: must be positive")
	}
	if c.Reconciler.WarnDepth < 0 {
		add("reconciler.warn_depth: must not be negative")
	}
	if c.Replication.Buffer < 1 {
		add("replication.buffer: must be at least 1")
	}

	return errors.Join(errs...)
}

func (n NodeConfig) validateDriver() error {
	switch n.Driver {
	case "", backend.DriverMemory:
	case backend.DriverSQLite, backend.DriverLevelDB:
		if n.DSN == "" {
			return fmt.Errorf("driver %s needs a dsn", n.Driver)
		}
	case backend.DriverHTTP:
		if n.Addr == "" {
			return fmt.Errorf("driver http needs an addr")
		}
	default:
		return fmt.Errorf("unknown driver %q", n.Driver)
	}
	return nil
}

// Topology builds the validated cluster layout from Nodes.
func (c Config) Topology() (cluster.Topology, error) {
	nodes := make([]cluster.Node, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		nodes = append(nodes, cluster.Node{
			ID:    types.NodeID(n.ID),
			Role:  types.Role(n.Role),
			Range: cluster.Range(n.Range),
		})
	}
	return cluster.NewTopology(nodes)
}

func (n NodeConfig) BackendOptions() backend.Options {
	return backend.Options{
		Driver:  n.Driver,
		DSN:     n.DSN,
		Addr:    n.Addr,
		Timeout: n.Timeout,
	}
}
