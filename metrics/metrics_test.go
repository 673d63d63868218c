package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRegistered(t *testing.T) {
	// Vectors only appear once a label set is used.
	DecoderFramesTotal.WithLabelValues("codectest")
	DecoderDroppedFramesTotal.WithLabelValues(DropEnvelope)
	EncoderFramesTotal.WithLabelValues("codectest")

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"opustranscode_decoder_frames_total",
		"opustranscode_decoder_dropped_frames_total",
		"opustranscode_decoders_open",
		"opustranscode_encoder_frames_total",
		"opustranscode_encoders_open",
	} {
		assert.True(t, names[want], want)
	}
}

func TestDropCounterByReason(t *testing.T) {
	before := testutil.ToFloat64(DecoderDroppedFramesTotal.WithLabelValues(DropOverTrim))
	DecoderDroppedFramesTotal.WithLabelValues(DropOverTrim).Inc()
	after := testutil.ToFloat64(DecoderDroppedFramesTotal.WithLabelValues(DropOverTrim))
	assert.Equal(t, before+1, after)
}
