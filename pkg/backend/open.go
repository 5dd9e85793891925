package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gamedb/pkg/types"
)

const (
	DriverSQLite  = "sqlite"
	DriverLevelDB = "leveldb"
	DriverMemory  = "memory"
	DriverHTTP    = "http"
)

// Options selects and configures a node's driver.
type Options struct {
	Driver  string
	DSN     string        // sqlite file or leveldb directory
	Addr    string        // base URL of the remote process for the http driver
	Timeout time.Duration // http client timeout
}

func Open(node types.NodeID, opts Options) (Backend, error) {
	switch opts.Driver {
	case DriverSQLite:
		if opts.DSN == "" {
			return nil, fmt.Errorf("node %s: sqlite driver needs a dsn", node)
		}
		if dir := filepath.Dir(opts.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("node %s: create data dir: %w", node, err)
			}
		}
		return OpenSQLite(node, opts.DSN)
	case DriverLevelDB:
		if opts.DSN == "" {
			return nil, fmt.Errorf("node %s: leveldb driver needs a dsn", node)
		}
		return OpenLevelDB(node, opts.DSN)
	case DriverMemory, "":
		return NewMemory(node), nil
	case DriverHTTP:
		if opts.Addr == "" {
			return nil, fmt.Errorf("node %s: http driver needs an addr", node)
		}
		return NewHTTP(node, opts.Addr, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("node %s: unknown driver %q", node, opts.Driver)
	}
}
