package engine

import (
	"context"
	"log/slog"
	"sync"

	"kaia/internal/speech"
	"kaia/pkg/audioconv"
)

// File replays an audio file as one recognition pass.
type File struct {
	path   string
	tr     Transcriber
	opt    Options
	decode func(ctx context.Context, path string) ([]float32, error)

	mu       sync.Mutex
	listener speech.Listener
	cancel   context.CancelFunc
}

func NewFile(path string, tr Transcriber, opt Options) *File {
	return &File{
		path: path,
		tr:   tr,
		opt:  opt.withDefaults(),
		decode: func(ctx context.Context, path string) ([]float32, error) {
			return audioconv.DecodeFile(ctx, path, audioconv.Options{})
		},
	}
}

func (f *File) Attach(l speech.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *File) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listener == nil {
		return ErrNotAttached
	}
	if f.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(ctx, cancel, f.listener)
	return nil
}

func (f *File) Stop() error {
	f.mu.Lock()
	cancel := f.cancel
	f.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (f *File) run(ctx context.Context, cancel context.CancelFunc, l speech.Listener) {
	code := f.replay(ctx, l)

	cancel()
	f.mu.Lock()
	f.cancel = nil
	f.mu.Unlock()

	if code != "" {
		l.OnError(string(code))
	}
	l.OnEnd()
}

func (f *File) replay(ctx context.Context, l speech.Listener) speech.ErrorCode {
	pcm, err := f.decode(ctx, f.path)
	if err != nil {
		slog.Error("failed to decode audio file", "path", f.path, "err", err)
		return speech.ErrAudioCapture
	}
	slog.Debug("replaying audio file", "path", f.path, "samples", len(pcm))

	p := &pass{tr: f.tr, opt: f.opt, listener: l}
	seg := NewSegmenter(f.opt.VAD)
	heard := false

	for off := 0; off < len(pcm); off += frameSize {
		if ctx.Err() != nil {
			break
		}
		end := min(off+frameSize, len(pcm))
		ev, utt := seg.Push(pcm[off:end])
		switch ev {
		case VADSpeechStart:
			heard = true
			l.OnSpeechStart()
		case VADUtterance:
			p.transcribe(utt)
		}
	}
	if utt := seg.Flush(); utt != nil {
		p.transcribe(utt)
	}

	if !heard {
		return speech.ErrNoSpeech
	}
	return ""
}
