package importer

import (
	"bufio"
	"strings"

	"github.com/conorfennell/neurapath/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
)

type state int

const (
	seeking state = iota
	readingQuestion
	readingAnswer
	readingContext
)

// card is a question/answer block inside a single paragraph.
type card struct {
	Question string
	Answer   string
	Context  string
}

// text renders the card as extract text with a cloze over the answer.
func (c card) text() (string, []domain.ClozeSpan) {
	plain := c.Question + "\n"
	start := len([]rune(plain))
	plain += c.Answer
	spans := []domain.ClozeSpan{{
		Text:        c.Answer,
		StartOffset: start,
		StopOffset:  start + len([]rune(c.Answer)),
	}}
	if c.Context != "" {
		plain += "\n" + c.Context
	}
	return plain, spans
}

// parseCard reads a paragraph that starts with "Q:" and has an "A:" line.
// Continuation lines belong to the field above them.
func parseCard(paragraph string) (card, bool) {
	if !strings.HasPrefix(paragraph, questionPrefix) {
		return card{}, false
	}

	var c card
	var block []string
	current := seeking

	flush := func() {
		content := strings.Join(block, "\n")
		switch current {
		case readingQuestion:
			c.Question = content
		case readingAnswer:
			c.Answer = content
		case readingContext:
			c.Context = content
		}
		block = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(paragraph))
	for scanner.Scan() {
		line := scanner.Text()
		var next state
		var prefix string
		switch {
		case strings.HasPrefix(line, questionPrefix):
			next, prefix = readingQuestion, questionPrefix
		case strings.HasPrefix(line, answerPrefix):
			next, prefix = readingAnswer, answerPrefix
		case strings.HasPrefix(line, contextPrefix):
			next, prefix = readingContext, contextPrefix
		default:
			if current != seeking {
				block = append(block, line)
			}
			continue
		}

		flush()
		current = next
		block = append(block, strings.TrimPrefix(line[len(prefix):], " "))
	}
	flush()

	if c.Question == "" || c.Answer == "" {
		return card{}, false
	}
	return c, true
}
