package workingmemory

import (
	"strings"

	"github.com/hupe1980/threadmem/core"
	"github.com/hupe1980/threadmem/tool"
)

const (
	openTag  = "<working_memory>"
	closeTag = "</working_memory>"

	// ToolName is the structured-call tool exposed to the model.
	ToolName = "update_working_memory"
)

type inlineTag struct{}

func (inlineTag) mode() Mode { return ModeInlineTag }

func (inlineTag) extract(text string) (string, string, bool) {
	return ExtractInline(text)
}

func (inlineTag) tools(*Updater) []tool.Tool { return nil }

func (inlineTag) instructions() string {
	return "Keep the working memory below up to date with durable facts about the user. " +
		"To change it, include the complete updated document between " + openTag + " and " + closeTag +
		" tags anywhere in your reply. The tagged block is hidden from the user and replaces the whole document."
}

// ExtractInline finds every complete <working_memory>...</working_memory>
// block in text. The last block's body is the document, with leading and
// trailing whitespace trimmed and the interior kept verbatim. All complete
// blocks are removed from the returned text. An opening tag without a
// closing tag ends the scan and stays in the text.
func ExtractInline(text string) (document, cleaned string, found bool) {
	var b strings.Builder
	rest := text
	for {
		start := strings.Index(rest, openTag)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(openTag):], closeTag)
		if end < 0 {
			break
		}
		end += start + len(openTag)

		b.WriteString(rest[:start])
		document = strings.TrimSpace(rest[start+len(openTag) : end])
		found = true
		rest = rest[end+len(closeTag):]
	}
	if !found {
		return "", text, false
	}
	b.WriteString(rest)
	return document, strings.TrimSpace(b.String()), true
}

type structuredCall struct{}

func (structuredCall) mode() Mode { return ModeStructuredCall }

// extract leaves text untouched; updates arrive through the tool.
func (structuredCall) extract(text string) (string, string, bool) { return "", text, false }

func (structuredCall) instructions() string {
	return "Keep the working memory below up to date with durable facts about the user. " +
		"To change it, call the " + ToolName + " tool with the complete updated document. " +
		"The document replaces the whole working memory."
}

type updateArgs struct {
	Memory string `json:"memory" description:"The complete working memory document in Markdown"`
}

func (structuredCall) tools(u *Updater) []tool.Tool {
	return []tool.Tool{tool.NewFunctionToolFromStruct(
		ToolName,
		"Replace the working memory with an updated Markdown document following the memory template.",
		updateArgs{},
		func(run *core.RunContext, args map[string]any) (any, error) {
			memory, ok := args["memory"].(string)
			if !ok {
				return nil, tool.NewToolError(ToolName, "memory must be a string", tool.CodeValidation)
			}
			snap, err := u.Update(run.Context, Target{ThreadID: run.ThreadID, ResourceID: run.ResourceID}, memory)
			if err != nil {
				return nil, err
			}
			if snap == nil {
				return map[string]any{"success": false}, nil
			}
			return map[string]any{
				"success": true,
				"version": snap.Version,
				"scope":   snap.Scope.Key(),
			}, nil
		},
	)}
}

var (
	_ strategy = inlineTag{}
	_ strategy = structuredCall{}
)
