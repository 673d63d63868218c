package header

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

// maxXiphHeaders bounds the header count of Xiph-laced extradata.
const maxXiphHeaders = 3

// PackExtradata concatenates headers with Xiph lacing: one byte holding the
// header count minus one, the 255-laced sizes of every header but the last,
// then the header data.
func PackExtradata(headers ...[]byte) ([]byte, error) {
	if len(headers) < 1 || len(headers) > maxXiphHeaders {
		return nil, fmt.Errorf("%w: %d headers", ErrCorruptExtradata, len(headers))
	}

	size := 1
	for i, h := range headers {
		size += len(h)
		if i < len(headers)-1 {
			size += len(h)/255 + 1
		}
	}

	out := make([]byte, 0, size)
	out = append(out, byte(len(headers)-1))
	for _, h := range headers[:len(headers)-1] {
		n := len(h)
		for n >= 255 {
			out = append(out, 255)
			n -= 255
		}
		out = append(out, byte(n))
	}
	for _, h := range headers {
		out = append(out, h...)
	}
	return out, nil
}

// SplitExtradata reverses PackExtradata.
func SplitExtradata(extra []byte) ([][]byte, error) {
	if len(extra) < 1 {
		return nil, fmt.Errorf("%w: empty", ErrCorruptExtradata)
	}
	count := int(extra[0]) + 1
	if count > maxXiphHeaders {
		return nil, fmt.Errorf("%w: %d headers", ErrCorruptExtradata, count)
	}

	off := 1
	sizes := make([]int, count)
	total := 0
	for i := 0; i < count-1; i++ {
		n := 0
		for {
			if off >= len(extra) {
				return nil, fmt.Errorf("%w: truncated lacing", ErrCorruptExtradata)
			}
			b := extra[off]
			off++
			n += int(b)
			if b < 255 {
				break
			}
		}
		sizes[i] = n
		total += n
	}

	last := len(extra) - off - total
	if last < 0 {
		return nil, fmt.Errorf("%w: sizes exceed data", ErrCorruptExtradata)
	}
	sizes[count-1] = last

	out := make([][]byte, count)
	for i, n := range sizes {
		out[i] = extra[off : off+n]
		off += n
	}
	return out, nil
}

// ParseExtradata extracts the stream header from codec extradata. Three
// shapes are accepted: Xiph-laced identification and comment headers, a
// bare identification header, or anything else, in which case a header is
// synthesized from the negotiated channel count and rate. Tags is nil when
// the extradata carries no comment header.
func ParseExtradata(extra []byte, channelCount, sampleRate int) (*StreamHeader, *Tags, error) {
	switch {
	case isXiphLaced(extra):
		headers, err := SplitExtradata(extra)
		if err != nil {
			return nil, nil, err
		}
		if len(headers) < 2 {
			return nil, nil, fmt.Errorf("%w: %d headers, need identification and comment", ErrCorruptExtradata, len(headers))
		}
		h, err := Parse(headers[0])
		if err != nil {
			return nil, nil, err
		}
		tags, err := ParseTags(headers[1])
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "header.ParseExtradata",
				"error":    err.Error(),
			}).Warn("Ignoring malformed comment header")
			tags = nil
		}
		return h, tags, nil

	case !isRawHeader(extra):
		logrus.WithFields(logrus.Fields{
			"function":    "header.ParseExtradata",
			"extra_len":   len(extra),
			"channels":    channelCount,
			"sample_rate": sampleRate,
		}).Debug("No embedded header, synthesizing from format")
		h, err := Synthesize(channelCount, sampleRate)
		return h, nil, err

	default:
		h, err := Parse(extra)
		return h, nil, err
	}
}

// BuildExtradata packs an identification header and a comment header into
// Xiph-laced extradata.
func BuildExtradata(h *StreamHeader, tags *Tags) ([]byte, error) {
	head, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = &Tags{}
	}
	comments, err := tags.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return PackExtradata(head, comments)
}

// HasEmbeddedHeader reports whether extra carries an identification
// header, laced or bare, rather than requiring one to be synthesized.
func HasEmbeddedHeader(extra []byte) bool {
	return isXiphLaced(extra) || isRawHeader(extra)
}

func isXiphLaced(extra []byte) bool {
	return len(extra) > multiHeadSize && bytes.Equal(extra[2:10], []byte(Magic))
}

func isRawHeader(extra []byte) bool {
	return len(extra) >= baseSize && bytes.Equal(extra[:8], []byte(Magic))
}
