// Package engine provides recognition engines for the capture machine:
// a live microphone and an audio file, both transcribed by whisper.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"kaia/internal/speech"
	"kaia/pkg/stt"
)

// Transcriber turns one utterance of 16 kHz mono PCM into text.
type Transcriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt stt.Options) (stt.Result, error)
}

type Options struct {
	Language string // whisper language code, "auto" to detect
	Threads  int
	VAD      VADConfig

	// NoSpeechTimeout ends a pass in which nothing was said. After speech
	// it ends the pass without an error instead.
	NoSpeechTimeout time.Duration

	// UtteranceTimeout bounds one whisper call.
	UtteranceTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Language:         "auto",
		VAD:              DefaultVADConfig(),
		NoSpeechTimeout:  8 * time.Second,
		UtteranceTimeout: 60 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Language == "" {
		o.Language = def.Language
	}
	if o.VAD.SampleRate <= 0 {
		o.VAD = def.VAD
	}
	if o.NoSpeechTimeout <= 0 {
		o.NoSpeechTimeout = def.NoSpeechTimeout
	}
	if o.UtteranceTimeout <= 0 {
		o.UtteranceTimeout = def.UtteranceTimeout
	}
	return o
}

// pass accumulates the final segments of one recognition pass and publishes
// the whole list on every new utterance.
type pass struct {
	tr       Transcriber
	opt      Options
	listener speech.Listener

	mu   sync.Mutex
	segs []speech.Segment
}

func (p *pass) transcribe(pcm []float32) {
	ctx, cancel := context.WithTimeout(context.Background(), p.opt.UtteranceTimeout)
	defer cancel()

	res, err := p.tr.TranscribePCM(ctx, pcm, stt.Options{
		Language: p.opt.Language,
		Threads:  p.opt.Threads,
	})
	if err != nil {
		slog.Error("failed to transcribe utterance", "samples", len(pcm), "err", err)
		return
	}
	if res.Text == "" {
		slog.Debug("utterance had no text", "samples", len(pcm))
		return
	}

	slog.Debug("transcribed utterance", "text", res.Text, "confidence", res.Confidence)

	p.mu.Lock()
	p.segs = append(p.segs, speech.Final(res.Text, res.Confidence))
	segs := append([]speech.Segment(nil), p.segs...)
	p.mu.Unlock()

	p.listener.OnResult(segs)
}

// worker transcribes utterances in arrival order until in is closed.
func (p *pass) worker(in <-chan []float32, wg *sync.WaitGroup) {
	defer wg.Done()
	for pcm := range in {
		p.transcribe(pcm)
	}
}
