package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// TagsMagic starts every comment header.
const TagsMagic = "OpusTags"

// Tags is the comment header: a vendor string and KEY=value comments.
type Tags struct {
	Vendor   string
	Comments []string
}

// Add appends a KEY=value comment.
func (t *Tags) Add(key, value string) {
	t.Comments = append(t.Comments, key+"="+value)
}

// Get returns the first value for key, compared case-insensitively.
func (t *Tags) Get(key string) (string, bool) {
	for _, c := range t.Comments {
		k, v, ok := strings.Cut(c, "=")
		if ok && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// ParseTags decodes a comment header.
func ParseTags(b []byte) (*Tags, error) {
	if len(b) < 16 || !bytes.Equal(b[:8], []byte(TagsMagic)) {
		return nil, fmt.Errorf("%w: missing magic", ErrCorruptTags)
	}
	off := 8

	readString := func(what string) (string, error) {
		if len(b)-off < 4 {
			return "", fmt.Errorf("%w: truncated %s length", ErrCorruptTags, what)
		}
		n := int(binary.LittleEndian.Uint32(b[off:]))
		off += 4
		if n < 0 || n > len(b)-off {
			return "", fmt.Errorf("%w: %s length %d overruns header", ErrCorruptTags, what, n)
		}
		s := string(b[off : off+n])
		off += n
		return s, nil
	}

	vendor, err := readString("vendor")
	if err != nil {
		return nil, err
	}
	if len(b)-off < 4 {
		return nil, fmt.Errorf("%w: truncated comment count", ErrCorruptTags)
	}
	count := int(binary.LittleEndian.Uint32(b[off:]))
	off += 4
	// Every comment needs at least its length field.
	if count < 0 || count > (len(b)-off)/4 {
		return nil, fmt.Errorf("%w: %d comments overrun header", ErrCorruptTags, count)
	}

	t := &Tags{Vendor: vendor, Comments: make([]string, 0, count)}
	for i := 0; i < count; i++ {
		c, err := readString("comment")
		if err != nil {
			return nil, err
		}
		t.Comments = append(t.Comments, c)
	}
	return t, nil
}

// MarshalBinary serializes the comment header.
func (t *Tags) MarshalBinary() ([]byte, error) {
	size := 8 + 4 + len(t.Vendor) + 4
	for _, c := range t.Comments {
		size += 4 + len(c)
	}
	out := make([]byte, 0, size)
	out = append(out, TagsMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(t.Vendor)))
	out = append(out, t.Vendor...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(t.Comments)))
	for _, c := range t.Comments {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c)))
		out = append(out, c...)
	}
	return out, nil
}
