//go:build !cgo

package opustranscode

import (
	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/codec/pionopus"
)

// Without libopus only the SILK subset pion/opus implements can be
// decoded.
func defaultDecodeBackend() codec.Backend {
	return pionopus.New()
}

// Encoding needs libopus, which is only reachable through cgo.
func defaultEncodeBackend() codec.Backend {
	return nil
}
