package rebuild

import (
	"crypto/sha256"
	"time"

	"github.com/restitch/restitch/internal"
)

var logger = internal.GetLogger("rebuild")

const (
	// SectorSize is the atomic unit of comparison between the reference
	// file and the device. Matching is all-or-nothing per sector.
	SectorSize = 512

	// SentinelByte fills output ranges that could not be recovered.
	SentinelByte byte = 0x00

	DefaultOversample  = 4
	DefaultTolerance   = 2
	DefaultConcurrency = 4

	// seedQueueDepth bounds how far the skim pass can run ahead of the
	// expansion pool; a full queue back-pressures the skim.
	seedQueueDepth = 1024

	progressInterval = 500 * time.Millisecond
)

// Fingerprint is a fast digest used to pre-filter sector equality checks.
// Fingerprint equality is necessary, never sufficient: every match is
// confirmed with a full byte compare before it is acted on.
type Fingerprint [sha256.Size]byte

func CalcFP(buf []byte) Fingerprint {
	return sha256.Sum256(buf)
}

// MatchEvent asserts that the device sector at Addr is byte-identical to
// the reference sector at Index.
type MatchEvent struct {
	Index int64
	Addr  int64
}

// Placement is one resolved map entry: reference sector Index was located
// at device sector Addr by a chain of Conf matched sectors.
type Placement struct {
	Index int64
	Addr  int64
	Conf  int
}

// Range is a half-open [Start, End) byte range of the output file.
type Range struct {
	Start int64
	End   int64
}

type State int32

const (
	StateIdle State = iota
	StateSkimming
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSkimming:
		return "Skimming"
	case StateDraining:
		return "Draining"
	case StateDone:
		return "Done"
	}
	return "Unknown"
}

// Progress is one status update delivered to the OnProgress callback.
type Progress struct {
	State          State
	ResolvedChunks int64
	TotalChunks    int64
	ActiveWorkers  int32
	SectorsRead    int64
	ETASeconds     float64
}

// Result summarizes one reconstruction run.
type Result struct {
	SessionID         string
	TotalBytes        int64
	RecoveredBytes    int64
	RecoveredRanges   []Range
	GapRanges         []Range
	Chains            []int // resolved chain lengths, in file order
	SectorsRead       int64
	UnreadableSectors int64
	OutputCRC32       uint32
	Interrupted       bool
	Elapsed           time.Duration
}
