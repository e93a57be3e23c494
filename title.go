package threadmem

import (
	"context"
	"strings"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/logging"
	"github.com/hupe1980/threadmem/model"
)

const maxTitleRunes = 60

const titleInstructions = "Generate a short title for a conversation that starts with the following message. " +
	"Answer with the title only: no quotes, no punctuation at the end, at most 8 words."

type titleGenerator struct {
	model  model.Model
	logger logging.Logger
}

// generate returns a title for a conversation opening with text. Model
// failures fall back to the first line of text.
func (g *titleGenerator) generate(ctx context.Context, text string) string {
	if g.model == nil {
		return fallbackTitle(text)
	}
	resp, err := model.Collect(ctx, g.model, model.Request{
		Instructions: titleInstructions,
		Messages:     []core.Message{core.NewTextMessage(core.RoleUser, text)},
	})
	if err != nil {
		g.logger.Warn("thread.title.failed", "model", g.model.Info().Name, "error", err.Error())
		return fallbackTitle(text)
	}
	title := fallbackTitle(strings.Trim(strings.TrimSpace(resp.Text), `"'`))
	if title == "" {
		return fallbackTitle(text)
	}
	return title
}

// fallbackTitle is the first non-blank line of text, cut to maxTitleRunes.
func fallbackTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleRunes {
			return strings.TrimSpace(string(r[:maxTitleRunes]))
		}
		return line
	}
	return ""
}
