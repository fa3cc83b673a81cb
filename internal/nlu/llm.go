package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/openai/openai-go/v3"
)

const systemPrompt = `
You are KAIA-NLU, the intent classifier of a voice assistant that can run
shell commands on the user's own computer.
Your ONLY job is to convert the user's utterance into a minimal JSON object.

GENERAL RULES:
1. Output ONLY JSON. No markdown, no explanations.
2. Never invent a command the user did not ask for.
3. The utterance comes from speech recognition and may contain mistakes.

OUTPUT FORMAT:
{
  "intent": "execute" | "question" | "unknown",
  "command": "<single command line, only for execute>",
  "answer": "<short spoken answer, only for question>",
  "query": "<original user text>"
}

INTENTS:
- "execute": the user explicitly asks to run something on the computer.
  Write the command for the target shell: %s.
- "question": anything the user asks or says to the assistant. Answer in
  one or two short sentences in the user's language (%s).
- "unknown": noise, fragments or unclear meaning.
`

// LLM classifies through a chat completion model.
type LLM struct {
	client openai.Client
	model  string
	shell  string
	locale string
}

func NewLLM(client openai.Client, model, shell, locale string) *LLM {
	if model == "" {
		model = string(openai.ChatModelGPT5Nano)
	}
	return &LLM{client: client, model: model, shell: shell, locale: locale}
}

func (l *LLM) Classify(ctx context.Context, text string) (Result, error) {
	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(systemPrompt, l.shell, l.locale)),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(l.model),
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("no choices in response")
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("classified", "data", content)

	res, err := parseResult(content)
	if err != nil {
		return Result{}, err
	}
	if res.Query == "" {
		res.Query = text
	}
	return res, nil
}

// parseResult decodes the model output, tolerating a markdown fence.
func parseResult(content string) (Result, error) {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return Result{}, errors.New("empty message content")
	}
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	}

	var out Result
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Result{}, fmt.Errorf("unmarshal nlu result: %w (raw: %s)", err, content)
	}

	switch out.Intent {
	case IntentExecute:
		out.Command = cleanCommand(out.Command)
		if out.Command == "" {
			out.Intent = IntentUnknown
		}
	case IntentQuestion:
	default:
		out.Intent = IntentUnknown
	}
	return out, nil
}
