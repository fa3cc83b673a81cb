package assistant

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Confirmer asks the user whether a command may run.
type Confirmer interface {
	Confirm(ctx context.Context, command string) (bool, error)
}

// Prompt confirms on a terminal. Only an explicit yes counts.
type Prompt struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan string
}

func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

func (p *Prompt) Confirm(ctx context.Context, command string) (bool, error) {
	p.once.Do(func() {
		p.lines = make(chan string)
		go p.scan()
	})

	fmt.Fprintf(p.out, "Executar: %s? [s/N] ", command)

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return false, io.EOF
		}
		return yes(line), nil
	}
}

// scan owns the reader for the life of the process; a blocked terminal
// read cannot be interrupted.
func (p *Prompt) scan() {
	defer close(p.lines)
	sc := bufio.NewScanner(p.in)
	for sc.Scan() {
		p.lines <- sc.Text()
	}
}

func yes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "sim", "y", "yes":
		return true
	}
	return false
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, command string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, command string) (bool, error) {
	return f(ctx, command)
}
