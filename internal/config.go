package internal

import "time"

// Config carries everything a recovery run needs, assembled by the CLI
// layer and handed to the engine and its stores.
type Config struct {
	ReferencePath string
	DevicePath    string
	OutputPath    string

	// StartSector is the device sector the skim pass starts from.
	StartSector int64

	Concurrency int
	Oversample  int
	Tolerance   int

	ReadOnly bool

	MetaDriver string
	MetaAddr   string

	SessionID       string
	Resume          bool
	CheckpointEvery time.Duration

	// Source selects where device sectors come from: "device" reads the
	// block device (or image file) at DevicePath, "s3" reads a disk image
	// object with ranged GETs.
	Source     string
	S3Endpoint string
	S3Region   string
	S3Bucket   string
	S3Key      string
}
