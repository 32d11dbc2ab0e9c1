package cdi

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DirSink writes every packet to its own file named <count>_<appid>.bin, the
// layout ground tools read a session from.
type DirSink struct {
	dir string

	mu    sync.Mutex
	count int
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

// FileName returns the file name used for the n-th packet.
func FileName(n int, appID uint16) string {
	return fmt.Sprintf("%05d_%04x.bin", n, appID)
}

func (d *DirSink) Write(appID uint16, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	name := filepath.Join(d.dir, FileName(d.count, appID))
	if err := os.WriteFile(name, payload, 0644); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	d.count++
	return nil
}
