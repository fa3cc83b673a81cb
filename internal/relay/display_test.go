package relay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayRendersLifecycle(t *testing.T) {
	var mirror bytes.Buffer
	d := NewDisplay(&mirror)

	d.Connected()
	d.Event("a1", Started{Command: "dir"})
	d.Event("a1", Stdout{Chunk: "a.txt\n"})
	d.Event("a1", Stderr{Chunk: "warn\n"})
	d.Event("a1", ExitCode(0))
	d.Event("b2", Exit{})
	d.Disconnected()

	want := "[agent] connected\n" +
		"\n$ dir\n" +
		"a.txt\n" +
		"warn\n" +
		"\n[exit 0]\n" +
		"\n[exit null]\n" +
		"[agent] disconnected\n"
	assert.Equal(t, want, d.String())
	assert.Equal(t, want, mirror.String())
	assert.Len(t, d.Lines(), 7)
}

func TestTeeFansOut(t *testing.T) {
	a, b := NewDisplay(nil), NewDisplay(nil)
	tee := Tee{a, b}

	tee.Connected()
	tee.Event("x", Stdout{Chunk: "hi"})
	tee.Disconnected()

	assert.Equal(t, a.String(), b.String())
	assert.Contains(t, a.String(), "hi")
}
