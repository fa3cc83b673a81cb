package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompleteRunes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"ç", 2},
		{"a\xc3", 1},
		{"a\xe2\x82", 1},     // first two bytes of €
		{"a\xf0\x9f\x98", 1}, // first three bytes of 😀
		{"a\xe2\x82\xac", 4},
		{"\xa7", 1},   // stray continuation byte passes through
		{"\xc3A", 2},  // invalid sequence is not held back
		{"\xff", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, completeRunes([]byte(tt.in)), "%q", tt.in)
	}
}

func TestOutputHoldsBackPartialRune(t *testing.T) {
	var chunks []string
	o := &output{send: func(c string) { chunks = append(chunks, c) }}

	for _, w := range []string{"ol\xc3", "\xa1 \xe2", "\x82", "\xac"} {
		n, err := o.Write([]byte(w))
		assert.NoError(t, err)
		assert.Equal(t, len(w), n)
	}
	o.flush()
	assert.Equal(t, []string{"ol", "á ", "€"}, chunks)

	chunks = nil
	_, _ = o.Write([]byte("x\xc3"))
	o.flush()
	o.flush()
	assert.Equal(t, []string{"x", "\xc3"}, chunks)
}
