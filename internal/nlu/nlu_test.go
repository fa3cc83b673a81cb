package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesClassify(t *testing.T) {
	// a Wednesday afternoon
	now := func() time.Time { return time.Date(2026, time.March, 4, 15, 7, 0, 0, time.UTC) }
	r := Rules{Now: now}

	tests := []struct {
		text    string
		intent  Intent
		command string
		answer  string
	}{
		{text: "Kaia execute: dir.", intent: IntentExecute, command: "dir"},
		{text: "kaia, executa ls -la", intent: IntentExecute, command: "ls -la"},
		{text: "Kaia roda git status!", intent: IntentExecute, command: "git status"},
		{text: "run echo hi", intent: IntentExecute, command: "echo hi"},
		{text: "Kaia execute.", intent: IntentUnknown},
		{text: "Que horas são?", intent: IntentQuestion, answer: "Agora são 15 horas e 07 minutos."},
		{text: "qual é a data de hoje", intent: IntentQuestion, answer: "Hoje é quarta-feira, 4 de março."},
		{text: "Olá!", intent: IntentGreeting, answer: "Boa tarde! Como posso ajudar?"},
		{text: "oi kaia", intent: IntentGreeting, answer: "Boa tarde! Como posso ajudar?"},
		{text: "oitenta", intent: IntentUnknown},
		{text: "ajuda", intent: IntentHelp},
		{text: "o tempo está bom", intent: IntentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := r.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, res.Intent)
			assert.Equal(t, tt.command, res.Command)
			if tt.answer != "" {
				assert.Equal(t, tt.answer, res.Answer)
			}
			assert.Equal(t, tt.text, res.Query)
		})
	}
}

func TestGreetingFollowsTimeOfDay(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2026, 1, 1, h, 0, 0, 0, time.UTC) }
	assert.Equal(t, "Bom dia! Como posso ajudar?", greeting(at(8)))
	assert.Equal(t, "Boa tarde! Como posso ajudar?", greeting(at(12)))
	assert.Equal(t, "Boa noite! Como posso ajudar?", greeting(at(21)))
}

type fixed struct {
	res   Result
	err   error
	calls int
}

func (f *fixed) Classify(_ context.Context, text string) (Result, error) {
	f.calls++
	r := f.res
	r.Query = text
	return r, f.err
}

func TestChain(t *testing.T) {
	t.Run("first known result wins", func(t *testing.T) {
		a := &fixed{res: Result{Intent: IntentUnknown}}
		b := &fixed{res: Result{Intent: IntentExecute, Command: "ls"}}
		c := &fixed{res: Result{Intent: IntentQuestion}}

		res, err := Chain{a, b, c}.Classify(context.Background(), "list")
		require.NoError(t, err)
		assert.Equal(t, IntentExecute, res.Intent)
		assert.Equal(t, "ls", res.Command)
		assert.Equal(t, 0, c.calls)
	})

	t.Run("failures are skipped", func(t *testing.T) {
		a := &fixed{err: errors.New("offline")}
		b := &fixed{res: Result{Intent: IntentQuestion, Answer: "yes"}}

		res, err := Chain{nil, a, b}.Classify(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, "yes", res.Answer)
	})

	t.Run("all unknown reports last error", func(t *testing.T) {
		boom := errors.New("boom")
		res, err := Chain{&fixed{err: boom}, &fixed{res: Result{Intent: IntentUnknown}}}.Classify(context.Background(), "x")
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, IntentUnknown, res.Intent)
		assert.Equal(t, "x", res.Query)
	})
}

func TestParseResult(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		res, err := parseResult(`{"intent":"execute","command":"ls -la.","query":"list"}`)
		require.NoError(t, err)
		assert.Equal(t, IntentExecute, res.Intent)
		assert.Equal(t, "ls -la", res.Command)
	})

	t.Run("fenced", func(t *testing.T) {
		res, err := parseResult("```json\n{\"intent\":\"question\",\"answer\":\"42\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, IntentQuestion, res.Intent)
		assert.Equal(t, "42", res.Answer)
	})

	t.Run("execute without command", func(t *testing.T) {
		res, err := parseResult(`{"intent":"execute","command":"  "}`)
		require.NoError(t, err)
		assert.Equal(t, IntentUnknown, res.Intent)
	})

	t.Run("foreign intent", func(t *testing.T) {
		res, err := parseResult(`{"intent":"launch_missiles"}`)
		require.NoError(t, err)
		assert.Equal(t, IntentUnknown, res.Intent)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseResult("sure, here you go")
		assert.Error(t, err)
		_, err = parseResult("   ")
		assert.Error(t, err)
	})
}

func TestLLMClassify(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-5-nano",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"intent\":\"execute\",\"command\":\"uptime\"}"}
			}]
		}`))
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	l := NewLLM(client, "", "sh", "pt-BR")

	res, err := l.Classify(context.Background(), "há quanto tempo o computador está ligado")
	require.NoError(t, err)
	assert.Equal(t, IntentExecute, res.Intent)
	assert.Equal(t, "uptime", res.Command)
	assert.Equal(t, "há quanto tempo o computador está ligado", res.Query)

	assert.Equal(t, "gpt-5-nano", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "sh")
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestLLMClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	_, err := NewLLM(client, "m", "sh", "en").Classify(context.Background(), "hi")
	assert.Error(t, err)
}
