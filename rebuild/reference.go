package rebuild

import (
	"fmt"
	"io"
	"os"

	"github.com/restitch/restitch/internal"
)

// Reference holds the chunked reference file: consecutive non-overlapping
// sectors in file order. A final short sector is zero-padded in memory and
// the true byte length retained so the output can be truncated correctly.
type Reference struct {
	data    []byte
	length  int64
	sectors int64
	partial bool
}

// NewReference chunks the reference bytes read from r. An empty reference
// is a structural error: there is nothing to search for.
func NewReference(r io.Reader) (*Reference, error) {
	var data []byte
	var length int64
	for {
		buf := make([]byte, SectorSize)
		n, err := io.ReadFull(r, buf)
		if err == io.EOF {
			break
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("failed to read reference: %w", err)
		}
		length += int64(n)
		data = append(data, buf...) // tail of buf is already zero
		if err == io.ErrUnexpectedEOF {
			break
		}
	}
	if length == 0 {
		return nil, internal.ErrEmptyReference
	}
	return &Reference{
		data:    data,
		length:  length,
		sectors: int64(len(data) / SectorSize),
		partial: length%SectorSize != 0,
	}, nil
}

// LoadReference reads and chunks the file at path.
func LoadReference(path string) (*Reference, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference %s: %w", path, err)
	}
	defer f.Close()
	return NewReference(f)
}

func (ref *Reference) SectorCount() int64 { return ref.sectors }

// Length is the true byte length of the reference file, which is also the
// exact length of the reconstructed output.
func (ref *Reference) Length() int64 { return ref.length }

// Sector returns the zero-padded 512-byte view of sector i.
func (ref *Reference) Sector(i int64) []byte {
	return ref.data[i*SectorSize : (i+1)*SectorSize]
}

// SectorLen returns how many bytes of sector i belong to the file; only
// the final sector of a non-aligned file is short.
func (ref *Reference) SectorLen(i int64) int {
	if ref.partial && i == ref.sectors-1 {
		return int(ref.length - i*SectorSize)
	}
	return SectorSize
}
