// Package packet implements Opus packet inspection and framing per RFC 6716.
//
// It parses the TOC byte, counts frames, estimates the number of samples a
// packet decodes to, and converts between the standard and self-delimited
// framings. The self-delimited form is what multistream packets use for every
// elementary stream except the last one (RFC 6716 Appendix B), so
// SplitMultistream and JoinMultistream are the entry points used by the
// codec package when it fans a multistream packet out to per-stream codecs.
//
// Example:
//
//	n, err := packet.SampleCount(data, 48000)
//	if err != nil || n < 120 || n > 5760 {
//	    // outside the decodable envelope
//	}
package packet
