package rebuild

import (
	"bytes"
	"context"
	"fmt"

	"github.com/restitch/restitch/internal"
)

var sentinelSector = bytes.Repeat([]byte{SentinelByte}, SectorSize)

// assemble materializes the output in file order: resolved sectors are
// read back from the device, unresolved ranges are filled with the
// sentinel byte and reported as gaps. A resolved sector that fails to read
// back is downgraded to a gap — the output never contains wrong bytes, only
// recovered bytes and marked holes.
func (e *Engine) assemble(ctx context.Context, src SectorSource, sink SectorSink) (*Result, error) {
	res := &Result{TotalBytes: e.ref.Length()}
	var crc uint32

	for i := int64(0); i < e.ref.SectorCount(); i++ {
		n := e.ref.SectorLen(i)
		out := sentinelSector[:n]
		recovered := false
		if addr, _, ok := e.rmap.Lookup(i); ok {
			buf, err := src.ReadSector(ctx, addr)
			if err != nil {
				logger.Warnf("sector %d resolved to address %d but readback failed: %v", i, addr, err)
			} else {
				out = buf[:n]
				recovered = true
			}
		}
		if err := sink.WriteSector(i, out); err != nil {
			return nil, fmt.Errorf("failed to write output sector %d: %w", i, err)
		}
		crc = internal.UpdateCRC32(crc, out)

		off := i * SectorSize
		if recovered {
			res.RecoveredBytes += int64(n)
			res.RecoveredRanges = appendRange(res.RecoveredRanges, off, off+int64(n))
		} else {
			res.GapRanges = appendRange(res.GapRanges, off, off+int64(n))
		}
	}

	res.OutputCRC32 = crc
	res.Chains = e.rmap.Chains(e.conf.Tolerance)
	return res, nil
}

// appendRange extends the last range when contiguous with it.
func appendRange(rs []Range, start, end int64) []Range {
	if n := len(rs); n > 0 && rs[n-1].End == start {
		rs[n-1].End = end
		return rs
	}
	return append(rs, Range{Start: start, End: end})
}
