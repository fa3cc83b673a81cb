// Package nlu turns a final transcript into an intent: a shell command to
// run, an answer to speak, or nothing.
package nlu

import (
	"context"
	"log/slog"
	"strings"
)

type Intent string

const (
	IntentExecute  Intent = "execute"
	IntentQuestion Intent = "question"
	IntentGreeting Intent = "greeting"
	IntentHelp     Intent = "help"
	IntentUnknown  Intent = "unknown"
)

type Result struct {
	Intent  Intent `json:"intent"`
	Command string `json:"command,omitempty"`
	Answer  string `json:"answer,omitempty"`
	Query   string `json:"query"`
}

// Classifier maps an utterance to a Result.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Chain asks each classifier in turn and returns the first result that is
// not unknown. Failing classifiers are skipped.
type Chain []Classifier

func (c Chain) Classify(ctx context.Context, text string) (Result, error) {
	var lastErr error
	for _, cl := range c {
		if cl == nil {
			continue
		}
		res, err := cl.Classify(ctx, text)
		if err != nil {
			slog.Warn("classifier failed", "err", err)
			lastErr = err
			continue
		}
		if res.Intent != IntentUnknown && res.Intent != "" {
			return res, nil
		}
	}
	if lastErr != nil {
		return Result{Intent: IntentUnknown, Query: text}, lastErr
	}
	return Result{Intent: IntentUnknown, Query: text}, nil
}

// cleanCommand strips what recognition adds around a spoken command.
func cleanCommand(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".!?… ")
	return strings.TrimSpace(s)
}
