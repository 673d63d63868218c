package packet

// Packet is an Opus packet split into its compressed frames.
type Packet struct {
	TOC      TOC
	Frames   [][]byte
	Padding  int
	Consumed int // bytes of the input occupied by this packet
}

// parseLength reads a one or two byte frame length (RFC 6716 section 3.2.1).
func parseLength(data []byte) (length, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrPacketTooShort
	}
	first := int(data[0])
	if first < 252 {
		return first, 1, nil
	}
	if len(data) < 2 {
		return 0, 0, ErrPacketTooShort
	}
	return 4*int(data[1]) + first, 2, nil
}

func writeLength(dst []byte, length int) int {
	if length < 252 {
		dst[0] = byte(length)
		return 1
	}
	first := 252 + length%4
	dst[0] = byte(first)
	dst[1] = byte((length - first) / 4)
	return 2
}

// Parse splits one packet into frames. With selfDelimited set the data may
// carry trailing bytes belonging to following packets, and exactly one
// self-delimited packet is consumed.
func Parse(data []byte, selfDelimited bool) (Packet, error) {
	if len(data) < 1 {
		return Packet{}, ErrPacketTooShort
	}

	toc := ParseTOC(data[0])
	offset := 1
	padding := 0
	var sizes []int

	// remaining reports the bytes left for frame data in the standard framing.
	remaining := func() int { return len(data) - offset - padding }

	switch toc.FrameCode {
	case 0:
		if selfDelimited {
			n, c, err := parseLength(data[offset:])
			if err != nil {
				return Packet{}, err
			}
			offset += c
			sizes = []int{n}
		} else {
			sizes = []int{remaining()}
		}

	case 1:
		if selfDelimited {
			n, c, err := parseLength(data[offset:])
			if err != nil {
				return Packet{}, err
			}
			offset += c
			sizes = []int{n, n}
		} else {
			total := remaining()
			if total%2 != 0 {
				return Packet{}, ErrInvalidPacket
			}
			sizes = []int{total / 2, total / 2}
		}

	case 2:
		first, c, err := parseLength(data[offset:])
		if err != nil {
			return Packet{}, err
		}
		offset += c
		second := 0
		if selfDelimited {
			second, c, err = parseLength(data[offset:])
			if err != nil {
				return Packet{}, err
			}
			offset += c
		} else {
			second = remaining() - first
		}
		if second < 0 {
			return Packet{}, ErrInvalidPacket
		}
		sizes = []int{first, second}

	case 3:
		if offset >= len(data) {
			return Packet{}, ErrPacketTooShort
		}
		countByte := data[offset]
		offset++
		count := int(countByte & 0x3F)
		if count == 0 || count > 48 {
			return Packet{}, ErrInvalidFrameCount
		}
		if countByte&0x40 != 0 {
			for {
				if offset >= len(data) {
					return Packet{}, ErrPacketTooShort
				}
				p := int(data[offset])
				offset++
				if p == 255 {
					padding += 254
					continue
				}
				padding += p
				break
			}
		}

		sizes = make([]int, count)
		if countByte&0x80 != 0 {
			known := 0
			for i := 0; i < count-1; i++ {
				n, c, err := parseLength(data[offset:])
				if err != nil {
					return Packet{}, err
				}
				offset += c
				sizes[i] = n
				known += n
			}
			if selfDelimited {
				n, c, err := parseLength(data[offset:])
				if err != nil {
					return Packet{}, err
				}
				offset += c
				sizes[count-1] = n
			} else {
				last := remaining() - known
				if last < 0 {
					return Packet{}, ErrInvalidPacket
				}
				sizes[count-1] = last
			}
		} else {
			per := 0
			if selfDelimited {
				n, c, err := parseLength(data[offset:])
				if err != nil {
					return Packet{}, err
				}
				offset += c
				per = n
			} else {
				total := remaining()
				if total < 0 || total%count != 0 {
					return Packet{}, ErrInvalidPacket
				}
				per = total / count
			}
			for i := range sizes {
				sizes[i] = per
			}
		}
	}

	frameBytes := 0
	for _, n := range sizes {
		if n < 0 || n > 1275 {
			return Packet{}, ErrInvalidPacket
		}
		frameBytes += n
	}

	consumed := offset + frameBytes + padding
	if consumed > len(data) {
		return Packet{}, ErrPacketTooShort
	}
	if !selfDelimited && consumed != len(data) {
		return Packet{}, ErrInvalidPacket
	}

	frames := make([][]byte, len(sizes))
	pos := offset
	for i, n := range sizes {
		frames[i] = data[pos : pos+n]
		pos += n
	}

	return Packet{TOC: toc, Frames: frames, Padding: padding, Consumed: consumed}, nil
}

// Build assembles frames into a packet using the most compact frame code.
// tocBase supplies the configuration and stereo bits; its frame code bits
// are ignored. Padding is not reproduced.
func Build(tocBase byte, frames [][]byte, selfDelimited bool) ([]byte, error) {
	count := len(frames)
	if count < 1 || count > 48 {
		return nil, ErrInvalidFrameCount
	}

	total := 0
	for _, f := range frames {
		if len(f) > 1275 {
			return nil, ErrInvalidPacket
		}
		total += len(f)
	}
	last := len(frames[count-1])
	base := tocBase &^ 0x03

	// Worst case: TOC, count byte, one length per frame plus the
	// self-delimiting length.
	out := make([]byte, 2+2*count+2+total)
	n := 0

	switch {
	case count == 1:
		out[n] = base
		n++
		if selfDelimited {
			n += writeLength(out[n:], last)
		}

	case count == 2 && len(frames[0]) == len(frames[1]):
		out[n] = base | 0x01
		n++
		if selfDelimited {
			n += writeLength(out[n:], last)
		}

	case count == 2:
		out[n] = base | 0x02
		n++
		n += writeLength(out[n:], len(frames[0]))
		if selfDelimited {
			n += writeLength(out[n:], last)
		}

	default:
		vbr := false
		for _, f := range frames[1:] {
			if len(f) != len(frames[0]) {
				vbr = true
				break
			}
		}
		out[n] = base | 0x03
		n++
		if vbr {
			out[n] = byte(count) | 0x80
			n++
			for _, f := range frames[:count-1] {
				n += writeLength(out[n:], len(f))
			}
		} else {
			out[n] = byte(count)
			n++
		}
		if selfDelimited {
			n += writeLength(out[n:], last)
		}
	}

	for _, f := range frames {
		n += copy(out[n:], f)
	}
	return out[:n], nil
}
