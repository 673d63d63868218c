//go:build cgo

package opustranscode

import (
	"github.com/opd-ai/opustranscode/codec"
	"github.com/opd-ai/opustranscode/codec/libopus"
)

func defaultDecodeBackend() codec.Backend {
	return libopus.New()
}

func defaultEncodeBackend() codec.Backend {
	return libopus.New()
}
