// Package metrics exposes Prometheus instrumentation for the decode and
// encode engines. Collectors are registered with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with DecoderDroppedFramesTotal.
const (
	DropCorrupted    = "corrupted"
	DropNoClock      = "no_clock"
	DropEnvelope     = "envelope"
	DropDecodeError  = "decode_error"
	DropOverTrim     = "over_trim"
	DropEmpty        = "empty"
	DropStreamFailed = "stream_failed"
)

// Decoder metrics
var (
	DecoderFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_frames_total",
			Help: "Total number of compressed frames decoded to PCM",
		},
		[]string{"backend"},
	)

	DecoderSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_samples_total",
			Help: "Total number of PCM samples per channel emitted by decoders",
		},
		[]string{"backend"},
	)

	DecoderDroppedFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_dropped_frames_total",
			Help: "Total number of compressed frames dropped without output",
		},
		[]string{"reason"},
	)

	DecoderTrimmedSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_trimmed_samples_total",
			Help: "Total number of decoded samples per channel discarded by end-trim",
		},
	)

	DecoderStateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_state_transitions_total",
			Help: "Total number of decoder state machine transitions",
		},
		[]string{"from", "to"},
	)

	DecoderFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opustranscode_decoder_flushes_total",
			Help: "Total number of decoder flushes",
		},
	)

	DecodersOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opustranscode_decoders_open",
			Help: "Number of decoder instances currently open",
		},
	)

	DecodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opustranscode_decode_duration_seconds",
			Help:    "Time spent decoding one compressed frame",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
	)
)

// Header metrics
var (
	HeadersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_headers_total",
			Help: "Total number of stream headers processed",
		},
		[]string{"source", "status"},
	)
)

// Encoder metrics
var (
	EncoderFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_encoder_frames_total",
			Help: "Total number of compressed frames emitted by encoders",
		},
		[]string{"backend"},
	)

	EncoderBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_encoder_bytes_total",
			Help: "Total number of compressed bytes emitted by encoders",
		},
		[]string{"backend"},
	)

	EncoderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opustranscode_encoder_failures_total",
			Help: "Total number of frames dropped because encoding failed",
		},
		[]string{"backend"},
	)

	EncoderPaddingSamplesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opustranscode_encoder_padding_samples_total",
			Help: "Total number of start-of-stream silence samples per channel inserted by encoders",
		},
	)

	EncodersOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "opustranscode_encoders_open",
			Help: "Number of encoder instances currently open",
		},
	)
)
