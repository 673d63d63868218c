package packet

import "fmt"

// maxFrameBytes is the largest compressed Opus frame (RFC 6716 section 3.4 R2).
const maxFrameBytes = 1275

// MaxMultistreamPacketBytes returns the worst-case size of one multistream
// packet carrying a single frame per stream: the maximum frame plus TOC and
// length overhead for every stream, less the self-delimiting length the last
// stream does not carry.
func MaxMultistreamPacketBytes(streams int) int {
	return (maxFrameBytes+3)*streams - 2
}

// SplitMultistream separates a multistream packet into one standard-framed
// packet per elementary stream. The first streams-1 packets are read with
// self-delimited framing; the last one takes the remaining bytes.
func SplitMultistream(data []byte, streams int) ([][]byte, error) {
	if streams < 1 {
		return nil, ErrInvalidStreamCount
	}
	if streams == 1 {
		return [][]byte{data}, nil
	}

	out := make([][]byte, streams)
	offset := 0
	for i := 0; i < streams-1; i++ {
		if offset >= len(data) {
			return nil, fmt.Errorf("stream %d: %w", i, ErrPacketTooShort)
		}
		p, err := Parse(data[offset:], true)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		std, err := Build(data[offset], p.Frames, false)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		out[i] = std
		offset += p.Consumed
	}
	if offset >= len(data) {
		return nil, fmt.Errorf("stream %d: %w", streams-1, ErrPacketTooShort)
	}
	out[streams-1] = data[offset:]
	return out, nil
}

// JoinMultistream concatenates per-stream packets into one multistream
// packet, converting every packet but the last to self-delimited framing.
func JoinMultistream(packets [][]byte) ([]byte, error) {
	if len(packets) < 1 {
		return nil, ErrInvalidStreamCount
	}
	if len(packets) == 1 {
		return packets[0], nil
	}

	var out []byte
	for i, pkt := range packets[:len(packets)-1] {
		p, err := Parse(pkt, false)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		sd, err := Build(pkt[0], p.Frames, true)
		if err != nil {
			return nil, fmt.Errorf("stream %d: %w", i, err)
		}
		out = append(out, sd...)
	}
	return append(out, packets[len(packets)-1]...), nil
}
