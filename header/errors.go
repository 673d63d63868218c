package header

import "errors"

// Header parsing errors
var (
	// ErrCorruptHeader indicates an OpusHead record that is truncated,
	// carries the wrong magic, or describes an inconsistent stream layout.
	ErrCorruptHeader = errors.New("corrupt opus header")

	// ErrUnsupportedMappingFamily indicates a channel mapping family
	// outside 0..3.
	ErrUnsupportedMappingFamily = errors.New("unsupported channel mapping family")
)

// Header synthesis errors
var (
	// ErrUnsupportedChannelCount indicates a channel count that has no
	// default stream layout.
	ErrUnsupportedChannelCount = errors.New("no default layout for channel count")
)

// Comment header and extradata errors
var (
	// ErrCorruptTags indicates a malformed OpusTags record.
	ErrCorruptTags = errors.New("corrupt opus comment header")

	// ErrCorruptExtradata indicates broken Xiph header lacing.
	ErrCorruptExtradata = errors.New("corrupt xiph extradata")
)
