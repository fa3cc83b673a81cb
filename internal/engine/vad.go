package engine

import (
	"math"
	"time"
)

// VADConfig tunes the energy detector. Durations are converted to sample
// counts at SampleRate, so the segmenter never looks at the wall clock.
type VADConfig struct {
	SampleRate   int
	Threshold    float64       // frame RMS above which a frame is voiced
	MinSpeech    time.Duration // voiced audio needed before speech counts
	Hangover     time.Duration // trailing silence that closes an utterance
	PreRoll      time.Duration // audio kept from before the speech onset
	MaxUtterance time.Duration
}

func DefaultVADConfig() VADConfig {
	return VADConfig{
		SampleRate:   16000,
		Threshold:    0.015,
		MinSpeech:    200 * time.Millisecond,
		Hangover:     600 * time.Millisecond,
		PreRoll:      300 * time.Millisecond,
		MaxUtterance: 15 * time.Second,
	}
}

type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADUtterance
)

// Segmenter splits a stream of frames into utterances.
type Segmenter struct {
	threshold float64
	minSpeech int
	hangover  int
	preRoll   int
	maxLen    int

	speaking bool
	started  bool
	voiced   int
	silent   int
	buf      []float32
	pre      []float32
}

func NewSegmenter(cfg VADConfig) *Segmenter {
	def := DefaultVADConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	samples := func(d time.Duration) int {
		return int(d.Seconds() * float64(cfg.SampleRate))
	}
	return &Segmenter{
		threshold: cfg.Threshold,
		minSpeech: samples(cfg.MinSpeech),
		hangover:  samples(cfg.Hangover),
		preRoll:   samples(cfg.PreRoll),
		maxLen:    samples(cfg.MaxUtterance),
	}
}

// Speaking reports whether an utterance is open.
func (s *Segmenter) Speaking() bool {
	return s.speaking
}

// Push feeds one frame. VADSpeechStart is reported once per utterance, when
// enough voiced audio has accumulated; VADUtterance carries the closed
// utterance's samples. Bursts shorter than MinSpeech are dropped.
func (s *Segmenter) Push(frame []float32) (VADEvent, []float32) {
	loud := RMS(frame) > s.threshold

	if !s.speaking {
		if !loud {
			s.remember(frame)
			return VADNone, nil
		}
		s.speaking = true
		s.buf = append(append(s.buf[:0], s.pre...), frame...)
		s.pre = s.pre[:0]
		s.voiced = len(frame)
		s.silent = 0
		return s.checkStart()
	}

	s.buf = append(s.buf, frame...)
	if loud {
		s.voiced += len(frame)
		s.silent = 0
	} else {
		s.silent += len(frame)
	}

	if s.silent >= s.hangover || (s.maxLen > 0 && len(s.buf) >= s.maxLen) {
		return s.close()
	}
	return s.checkStart()
}

// Flush closes an open utterance, if it qualifies.
func (s *Segmenter) Flush() []float32 {
	if !s.speaking {
		return nil
	}
	_, utt := s.close()
	return utt
}

func (s *Segmenter) checkStart() (VADEvent, []float32) {
	if !s.started && s.voiced >= s.minSpeech {
		s.started = true
		return VADSpeechStart, nil
	}
	return VADNone, nil
}

func (s *Segmenter) close() (VADEvent, []float32) {
	started := s.started
	utt := append([]float32(nil), s.buf...)

	s.speaking = false
	s.started = false
	s.voiced = 0
	s.silent = 0
	s.buf = s.buf[:0]

	if !started {
		return VADNone, nil
	}
	return VADUtterance, utt
}

func (s *Segmenter) remember(frame []float32) {
	if s.preRoll <= 0 {
		return
	}
	s.pre = append(s.pre, frame...)
	if over := len(s.pre) - s.preRoll; over > 0 {
		s.pre = append(s.pre[:0], s.pre[over:]...)
	}
}

// RMS is the root mean square of a frame.
func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var sum float64
	for _, x := range f {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum / float64(len(f)))
}
