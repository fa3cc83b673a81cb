// Package notify plays short audible cues.
package notify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

var ErrFormat = errors.New("unsupported cue format")

// Beeper plays one sound file. The speaker is initialized on first use at
// the file's sample rate; later files are resampled to it.
type Beeper struct {
	path string

	once    sync.Once
	rate    beep.SampleRate
	initErr error
}

// NewBeeper returns a cue for path. An empty path gives a silent Beeper.
func NewBeeper(path string) *Beeper {
	return &Beeper{path: path}
}

// Play blocks until the cue has finished.
func (b *Beeper) Play() error {
	if b == nil || b.path == "" {
		return nil
	}

	f, err := os.Open(b.path)
	if err != nil {
		return fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := decode(f, b.path)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode cue %s: %w", b.path, err)
	}
	defer streamer.Close()

	b.once.Do(func() {
		b.rate = format.SampleRate
		b.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if b.initErr != nil {
		return fmt.Errorf("init speaker: %w", b.initErr)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != b.rate {
		s = beep.Resample(4, format.SampleRate, b.rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	default:
		return nil, beep.Format{}, ErrFormat
	}
}
