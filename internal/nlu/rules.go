package nlu

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	commandPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*kaia[,.]?\s+(?:execute|executa|executar|roda|rodá|run|abre)\s*:?\s*(.+)$`),
		regexp.MustCompile(`(?i)^\s*(?:execute|executa|executar|roda|run)\s*:?\s+(.+)$`),
	}
	greetingPattern = regexp.MustCompile(`(?i)^\s*(?:oi|olá|ola|ei|hey|hello|hi|bom dia|boa tarde|boa noite)(?:[\s,.!?]|$)`)
	helpPattern     = regexp.MustCompile(`(?i)^\s*(?:ajuda|help|o que você (?:pode )?faz|quem é você|qual (?:é )?seu nome)`)
	timePattern     = regexp.MustCompile(`(?i)^\s*(?:que horas?|qual (?:é )?a hora|what time)`)
	datePattern     = regexp.MustCompile(`(?i)^\s*(?:que dia|qual (?:é )?a data|what day)`)
)

// Rules classifies with fixed phrase patterns, in Brazilian Portuguese with
// English fallbacks. It never fails.
type Rules struct {
	Now func() time.Time
}

func (r Rules) Classify(_ context.Context, text string) (Result, error) {
	res := Result{Intent: IntentUnknown, Query: text}
	trimmed := strings.TrimSpace(text)

	for _, p := range commandPatterns {
		if m := p.FindStringSubmatch(trimmed); m != nil {
			if cmd := cleanCommand(m[1]); cmd != "" {
				res.Intent = IntentExecute
				res.Command = cmd
				return res, nil
			}
		}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	switch {
	case timePattern.MatchString(trimmed):
		t := now()
		res.Intent = IntentQuestion
		res.Answer = fmt.Sprintf("Agora são %02d horas e %02d minutos.", t.Hour(), t.Minute())
	case datePattern.MatchString(trimmed):
		t := now()
		res.Intent = IntentQuestion
		res.Answer = fmt.Sprintf("Hoje é %s, %d de %s.", weekdays[t.Weekday()], t.Day(), months[t.Month()-1])
	case helpPattern.MatchString(trimmed):
		res.Intent = IntentHelp
		res.Answer = `Posso executar comandos no seu computador. Diga "Kaia execute" seguido do comando.`
	case greetingPattern.MatchString(trimmed):
		res.Intent = IntentGreeting
		res.Answer = greeting(now())
	}
	return res, nil
}

func greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Bom dia! Como posso ajudar?"
	case h < 18:
		return "Boa tarde! Como posso ajudar?"
	default:
		return "Boa noite! Como posso ajudar?"
	}
}

var weekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

var months = [...]string{"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}
