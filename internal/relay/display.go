package relay

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Display renders relay activity as a console transcript. Output chunks
// are appended verbatim.
type Display struct {
	mu    sync.Mutex
	lines []string
	out   io.Writer
}

// NewDisplay returns a display that also mirrors every line to out when out
// is not nil.
func NewDisplay(out io.Writer) *Display {
	return &Display{out: out}
}

func (d *Display) Connected() {
	d.append("[agent] connected\n")
}

func (d *Display) Disconnected() {
	d.append("[agent] disconnected\n")
}

func (d *Display) Event(_ string, ev CommandEvent) {
	switch e := ev.(type) {
	case Started:
		d.append(fmt.Sprintf("\n$ %s\n", e.Command))
	case Stdout:
		d.append(e.Chunk)
	case Stderr:
		d.append(e.Chunk)
	case Exit:
		code := "null"
		if e.Code != nil {
			code = fmt.Sprint(*e.Code)
		}
		d.append(fmt.Sprintf("\n[exit %s]\n", code))
	}
}

// Lines returns a copy of everything displayed so far.
func (d *Display) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lines...)
}

func (d *Display) String() string {
	return strings.Join(d.Lines(), "")
}

func (d *Display) append(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = append(d.lines, line)
	if d.out != nil {
		_, _ = io.WriteString(d.out, line)
	}
}

// Tee fans one stream of relay activity out to several sinks.
type Tee []Sink

func (t Tee) Connected() {
	for _, s := range t {
		s.Connected()
	}
}

func (t Tee) Event(id string, ev CommandEvent) {
	for _, s := range t {
		s.Event(id, ev)
	}
}

func (t Tee) Disconnected() {
	for _, s := range t {
		s.Disconnected()
	}
}
