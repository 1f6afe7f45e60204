package rebuild

import (
	"fmt"
	"os"

	"github.com/restitch/restitch/internal"
)

// SectorSink receives the reconstructed output, append-only and sequential
// by sector index. The final sector may be shorter than SectorSize.
type SectorSink interface {
	WriteSector(index int64, data []byte) error
	Close() error
}

// FileSink writes the output stream to a local file.
type FileSink struct {
	f    *os.File
	next int64
}

func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) WriteSector(index int64, data []byte) error {
	if index != s.next {
		return internal.ErrNonSequential
	}
	if _, err := internal.WriteAll(s.f, data); err != nil {
		return err
	}
	s.next++
	return nil
}

func (s *FileSink) Close() error { return s.f.Close() }
