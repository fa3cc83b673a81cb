package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioProber opens and immediately closes the default input stream.
type PortAudioProber struct {
	SampleRate float64
}

func (p PortAudioProber) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	defer portaudio.Terminate()

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if dev == nil || dev.MaxInputChannels < 1 {
		return ErrNoDevice
	}

	rate := p.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	buf := make([]float32, 320)
	stream, err := portaudio.OpenDefaultStream(1, 0, rate, len(buf), buf)
	if err != nil {
		if errors.Is(err, portaudio.InvalidDevice) {
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	return stream.Stop()
}
