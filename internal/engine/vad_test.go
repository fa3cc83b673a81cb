package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func push(s *Segmenter, fs [][]float32) (starts int, utts [][]float32) {
	for _, f := range fs {
		ev, utt := s.Push(f)
		switch ev {
		case VADSpeechStart:
			starts++
		case VADUtterance:
			utts = append(utts, utt)
		}
	}
	return starts, utts
}

func TestSegmenterUtterance(t *testing.T) {
	s := NewSegmenter(DefaultVADConfig())

	// 300ms quiet, 400ms speech, 600ms quiet closes the utterance
	var script [][]float32
	script = append(script, frames(15, 0)...)
	script = append(script, frames(20, 0.2)...)
	script = append(script, frames(30, 0)...)

	starts, utts := push(s, script)
	assert.Equal(t, 1, starts)
	require.Len(t, utts, 1)
	// pre-roll + speech + hangover
	assert.Equal(t, (15+20+30)*frameSize, len(utts[0]))
	assert.False(t, s.Speaking())
}

func TestSegmenterDropsShortBursts(t *testing.T) {
	s := NewSegmenter(DefaultVADConfig())

	var script [][]float32
	script = append(script, frames(3, 0.2)...) // 60ms click
	script = append(script, frames(40, 0)...)

	starts, utts := push(s, script)
	assert.Zero(t, starts)
	assert.Empty(t, utts)
}

func TestSegmenterSpeechStartNeedsMinSpeech(t *testing.T) {
	s := NewSegmenter(DefaultVADConfig())

	for i := 0; i < 9; i++ {
		ev, _ := s.Push(tone(frameSize, 0.2))
		require.Equal(t, VADNone, ev, "frame %d", i)
	}
	ev, _ := s.Push(tone(frameSize, 0.2))
	assert.Equal(t, VADSpeechStart, ev)
}

func TestSegmenterMaxUtterance(t *testing.T) {
	cfg := DefaultVADConfig()
	cfg.MaxUtterance = time.Second
	s := NewSegmenter(cfg)

	_, utts := push(s, frames(120, 0.2))
	require.Len(t, utts, 2)
	assert.Equal(t, 50*frameSize, len(utts[0]))
}

func TestSegmenterFlush(t *testing.T) {
	s := NewSegmenter(DefaultVADConfig())
	assert.Nil(t, s.Flush())

	push(s, frames(20, 0.2))
	require.True(t, s.Speaking())
	utt := s.Flush()
	assert.Len(t, utt, 20*frameSize)
	assert.False(t, s.Speaking())
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS(tone(10, 0.5)), 1e-9)
}
