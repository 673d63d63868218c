// Package opustranscode decodes and encodes Opus audio streams for a host
// media pipeline.
//
// A host hands the decoder compressed frames as they come out of a
// container and receives timestamped, interleaved float PCM in canonical
// channel order. The encoder does the reverse: it takes PCM blocks of any
// length and emits fixed 20 ms packets together with the Xiph-laced
// OpusHead and OpusTags headers a container stores as codec extradata.
//
// # Getting Started
//
// Decoding a stream whose headers are in the container's extradata:
//
//	dec, err := opustranscode.OpenDecoder(opustranscode.Format{
//	    Channels:   2,
//	    SampleRate: 48000,
//	    Extra:      extradata,
//	}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dec.Close()
//
//	pcm, err := dec.Decode(opustranscode.Block{Payload: packet, PTS: pts})
//	switch {
//	case errors.Is(err, decoder.ErrCorruptFrame):
//	    // dropped, keep going
//	case err != nil:
//	    log.Fatal(err)
//	case pcm != nil:
//	    play(pcm)
//	}
//
// Encoding:
//
//	enc, err := opustranscode.OpenEncoder(2, 44100, 128000, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer enc.Close()
//
//	frames, err := enc.Encode(block)
//	...
//	tail, err := enc.Drain() // empty unless Options.FlushTail is set
//	writeHeader(enc.Extradata())
//
// # Timing
//
// Decoded buffers are stamped from a sample clock. The first timestamped
// frame sets it; after that every buffer starts where the previous one
// ended, and only a later timestamp, a discontinuity or a Flush moves it.
// Encoded frames are stamped earlier than their input by the encoder's
// lookahead, and the header's pre-skip records how much to discard.
//
// # Backends
//
// The codec itself is pluggable through codec.Backend. With cgo both
// directions default to libopus. Without it, decoding falls back to the
// pure Go pion decoder, which handles mono SILK only, and encoding has no
// default. Both can be replaced through Options, and codec/codectest
// provides a deterministic backend for tests.
//
// # Metrics
//
// Frame, drop and state transition counters are registered with the
// default Prometheus registry by package metrics.
package opustranscode
