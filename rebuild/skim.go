package rebuild

import "context"

// SkimScanner samples the device address space at a fixed stride looking
// for seed matches. It is the only component that covers the whole device;
// everything else reads locally around known hits. Hits are pushed to the
// seed channel as found, never batched, so expansion can start shrinking
// the search space immediately.
type SkimScanner struct {
	idx        *ChunkIndex
	src        SectorSource
	start      int64
	oversample int
}

func NewSkimScanner(idx *ChunkIndex, src SectorSource, start int64, oversample int) *SkimScanner {
	if oversample < 1 {
		oversample = DefaultOversample
	}
	return &SkimScanner{idx: idx, src: src, start: start, oversample: oversample}
}

// Stride is the sampling interval: with k-times oversampling relative to
// the reference chunk count, a contiguous on-disk copy of the reference
// cannot slip between two probes.
func (s *SkimScanner) Stride() int64 {
	stride := s.src.SectorCount() / (int64(s.oversample) * s.idx.ref.SectorCount())
	if stride < 1 {
		stride = 1
	}
	return stride
}

// SampleCount is how many probes a full skim issues, for pace estimation.
func (s *SkimScanner) SampleCount() int64 {
	stride := s.Stride()
	n := ceilDiv(s.src.SectorCount()-s.start, stride)
	n += ceilDiv(s.start-s.start%stride, stride)
	return n
}

// Run probes every Stride()-th sector from the start address to the device
// end, then wraps to the addresses before the start so a nonzero start
// biases the search order without losing coverage. It returns when the
// strided range is exhausted, ctx is cancelled, or no unresolved chunks
// remain. Unreadable sectors are skipped, never fatal.
func (s *SkimScanner) Run(ctx context.Context, seeds chan<- MatchEvent) error {
	stride := s.Stride()
	if err := s.sweep(ctx, seeds, s.start, s.src.SectorCount(), stride); err != nil {
		return err
	}
	return s.sweep(ctx, seeds, s.start%stride, s.start, stride)
}

func (s *SkimScanner) sweep(ctx context.Context, seeds chan<- MatchEvent, from, to, stride int64) error {
	for a := from; a < to; a += stride {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.idx.Remaining() == 0 {
			return nil
		}
		buf, err := s.src.ReadSector(ctx, a)
		if err != nil {
			logger.Tracef("skim: unreadable sector %d: %v", a, err)
			continue
		}
		for _, i := range s.idx.Lookup(buf) {
			select {
			case seeds <- MatchEvent{Index: i, Addr: a}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
