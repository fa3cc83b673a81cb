// Package stt wraps whisper.cpp for offline transcription of 16 kHz mono PCM.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string // "auto", "en", "pt", ...
	Threads       int    // <=0 => NumCPU()
	InitialPrompt string
	BeamSize      int // 0 = greedy
}

type Segment struct {
	Text       string
	StartSec   float64
	EndSec     float64
	Confidence float64 // mean token probability
}

type Result struct {
	Text       string
	Segments   []Segment
	Language   string
	Confidence float64
}

// Transcriber owns one loaded model. Calls are serialized because a whisper
// model shares its compute buffers between contexts.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// TranscribePCM runs whisper over pcm16k, which must be mono 16 kHz float32
// in [-1, 1].
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Result, error) {
	if len(pcm16k) == 0 {
		return Result{}, errors.New("no audio samples provided")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model == nil {
		return Result{}, errors.New("transcriber closed")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Result{}, fmt.Errorf("set language: %w", err)
	}
	wctx.SetTranslate(false)

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("process: %w", err)
	}

	var (
		segs  []Segment
		texts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("next segment: %w", err)
		}

		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		probs := make([]float32, 0, len(s.Tokens))
		for _, tok := range s.Tokens {
			// skip special tokens such as [_BEG_] and [_TT_123]
			if strings.HasPrefix(tok.Text, "[_") {
				continue
			}
			probs = append(probs, tok.P)
		}
		segs = append(segs, Segment{
			Text:       text,
			StartSec:   s.Start.Seconds(),
			EndSec:     s.End.Seconds(),
			Confidence: Mean(probs),
		})
		texts = append(texts, text)
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Result{
		Text:       strings.Join(texts, " "),
		Segments:   segs,
		Language:   lang,
		Confidence: segmentConfidence(segs),
	}, nil
}

// Mean averages token probabilities; an empty slice yields 0.
func Mean(probs []float32) float64 {
	if len(probs) == 0 {
		return 0
	}
	var sum float64
	for _, p := range probs {
		sum += float64(p)
	}
	return sum / float64(len(probs))
}

func segmentConfidence(segs []Segment) float64 {
	if len(segs) == 0 {
		return 0
	}
	var sum float64
	for _, s := range segs {
		sum += s.Confidence
	}
	return sum / float64(len(segs))
}
