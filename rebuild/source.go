package rebuild

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/restitch/restitch/internal"
)

// SectorSource yields raw device sectors by address. Reads may be issued
// concurrently. Implementations never write to the underlying device; the
// target is strictly read-only for the whole system.
type SectorSource interface {
	SectorCount() int64
	ReadSector(ctx context.Context, addr int64) ([]byte, error)
}

// DeviceSource reads sectors from a block device or a disk image file
// opened read-only.
type DeviceSource struct {
	f       *os.File
	sectors int64
}

func OpenDevice(path string) (*DeviceSource, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	size, err := deviceSize(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size device %s: %w", path, err)
	}
	return &DeviceSource{f: f, sectors: size / SectorSize}, nil
}

func (d *DeviceSource) SectorCount() int64 { return d.sectors }

func (d *DeviceSource) ReadSector(ctx context.Context, addr int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if addr < 0 || addr >= d.sectors {
		return nil, internal.ErrSectorBounds
	}
	buf := make([]byte, SectorSize)
	if _, err := d.f.ReadAt(buf, addr*SectorSize); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *DeviceSource) Close() error { return d.f.Close() }

// countingSource wraps a SectorSource with the engine's read counters and,
// for the skim pass, its pace estimator. Cancellations are not counted as
// unreadable sectors.
type countingSource struct {
	src   SectorSource
	reads *atomic.Int64
	bad   *atomic.Int64
	perf  *PerfCalculator
}

func (c *countingSource) SectorCount() int64 { return c.src.SectorCount() }

func (c *countingSource) ReadSector(ctx context.Context, addr int64) ([]byte, error) {
	buf, err := c.src.ReadSector(ctx, addr)
	c.reads.Add(1)
	if c.perf != nil {
		c.perf.Inc()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.bad.Add(1)
	}
	return buf, err
}
