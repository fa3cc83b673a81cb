package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sinkInputs = `Sink Input #41
	Driver: protocol-native.c
	Volume: front-left: 52428 /  80% / -5.81 dB,   front-right: 52428 /  80% / -5.81 dB
	Properties:
		application.name = "Firefox"
Sink Input #42
	Volume: front-left: 65536 / 100% / 0.00 dB
	Properties:
		application.name = "kaia"
Sink Input #oops
	Volume: 10%
Sink Input #43
	Volume: mono: 19661 /  30% / -31.37 dB
	Properties:
		application.name = "mpv"
`

func TestParseSinkInputs(t *testing.T) {
	got := parseSinkInputs(sinkInputs)
	assert.Equal(t, []streamInfo{
		{ID: 41, Volume: 80, AppName: "Firefox"},
		{ID: 42, Volume: 100, AppName: "kaia"},
		{ID: 43, Volume: 30, AppName: "mpv"},
	}, got)

	assert.Empty(t, parseSinkInputs(""))
}

type fakePactl struct {
	mu      sync.Mutex
	listing string
	sets    map[string][]string // id → volumes set, in order
	err     error
}

func (f *fakePactl) run(_ context.Context, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	switch args[0] {
	case "list":
		return []byte(f.listing), nil
	case "set-sink-input-volume":
		if f.sets == nil {
			f.sets = make(map[string][]string)
		}
		f.sets[args[1]] = append(f.sets[args[1]], args[2])
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected pactl %s", strings.Join(args, " "))
}

func (f *fakePactl) last(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.sets[id]
	if len(v) == 0 {
		return ""
	}
	return v[len(v)-1]
}

func TestDuckAndUnduck(t *testing.T) {
	p := &fakePactl{listing: sinkInputs}
	d := NewDucker([]string{"kaia"}, 20).WithRunner(p.run)
	d.Duration = 0

	require.NoError(t, d.Duck(context.Background()))
	assert.True(t, d.Active())
	assert.Equal(t, "24%", p.last("41"))
	assert.Equal(t, "20%", p.last("43"), "floored at minVolume")
	assert.Empty(t, p.last("42"), "own stream untouched")

	// ducking twice is a no-op
	require.NoError(t, d.Duck(context.Background()))
	assert.Len(t, p.sets["41"], 1)

	p.listing = strings.ReplaceAll(strings.ReplaceAll(sinkInputs, "80%", "24%"), "30%", "20%")
	require.NoError(t, d.Unduck(context.Background()))
	assert.False(t, d.Active())
	assert.Equal(t, "80%", p.last("41"))
	assert.Equal(t, "30%", p.last("43"))
}

func TestFadeSteps(t *testing.T) {
	p := &fakePactl{listing: "Sink Input #7\n\tVolume: mono: 1 / 100% / 0 dB\n"}
	d := NewDucker(nil, 0).WithRunner(p.run)

	require.NoError(t, d.DuckOthers(context.Background(), 0.5, 30*time.Millisecond))
	got := p.sets["7"]
	require.Len(t, got, 4)
	assert.Equal(t, "100%", got[0])
	assert.Equal(t, "50%", got[3])
}

func TestUnduckWithoutDuck(t *testing.T) {
	p := &fakePactl{err: errors.New("must not be called")}
	d := NewDucker(nil, 0).WithRunner(p.run)
	assert.NoError(t, d.Unduck(context.Background()))
}

func TestDuckReportsPactlFailure(t *testing.T) {
	p := &fakePactl{err: errors.New("no pulse")}
	d := NewDucker(nil, 0).WithRunner(p.run)
	assert.Error(t, d.Duck(context.Background()))
	assert.False(t, d.Active())
}
