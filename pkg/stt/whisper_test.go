package stt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 0.5, Mean([]float32{0.25, 0.75}), 1e-6)
}

func TestSegmentConfidence(t *testing.T) {
	assert.Equal(t, 0.0, segmentConfidence(nil))
	assert.InDelta(t, 0.7, segmentConfidence([]Segment{{Confidence: 0.6}, {Confidence: 0.8}}), 1e-9)
}

func TestNewTranscriberNeedsModel(t *testing.T) {
	_, err := NewTranscriber("")
	assert.Error(t, err)
}

func TestClosedTranscriber(t *testing.T) {
	tr := &Transcriber{}
	require.NoError(t, tr.Close())

	_, err := tr.TranscribePCM(context.Background(), nil, Options{})
	assert.Error(t, err)
	_, err = tr.TranscribePCM(context.Background(), []float32{0}, Options{})
	assert.EqualError(t, err, "transcriber closed")
}
