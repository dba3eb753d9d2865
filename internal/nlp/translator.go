// Package nlp translates natural-language instructions into browser CLI
// commands via an external OpenAI-compatible completion endpoint.
package nlp

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// knownCommands are first words recognized as direct CLI commands that
// bypass translation entirely.
var knownCommands = map[string]bool{
	"open": true, "click": true, "dblclick": true, "fill": true,
	"type": true, "screenshot": true, "scroll": true, "hover": true,
	"press": true, "select": true, "snapshot": true, "reload": true,
	"back": true, "forward": true, "close": true, "eval": true,
	"wait": true, "drag": true, "focus": true, "check": true,
	"uncheck": true, "mouse": true, "get": true, "find": true,
	"tap": true, "swipe": true,
}

const systemPrompt = `You are a command translator for a browser automation CLI. Convert natural language instructions to CLI commands.

Available commands:
- open <url> — Navigate to URL
- click <selector> — Click element (e.g. click @e5)
- dblclick <selector> — Double click
- fill <selector> <text> — Fill input field
- type <text> — Type text
- press <key> — Press key (Enter, Tab, Escape, etc.)
- screenshot [path] [--full] — Take screenshot
- scroll <direction> <amount> — Scroll (up/down/left/right, amount in pixels)
- hover <selector> — Hover over element
- select <selector> <value> — Select dropdown option
- snapshot — Get accessibility tree
- reload — Reload page
- back — Go back
- forward — Go forward
- close — Close browser
- eval <js> — Execute JavaScript
- wait <ms> — Wait milliseconds
- find role <role> click --name "<name>" — Find element by role and click
- find label "<label>" fill "<value>" — Find element by label and fill
- get url — Get current URL
- get title — Get page title
- mouse move <x> <y> — Move mouse

Reply with ONLY the command, nothing else. No explanation, no markdown, no quotes, no backticks.

Examples:
- "go to google" → open https://www.google.com
- "scroll down" → scroll down 500
- "click the submit button" → find role button click --name "Submit"
- "type hello in the search box" → find role textbox fill "hello"
- "take a screenshot" → screenshot
- "full page screenshot" → screenshot --full
- "go back" → back
- "reload the page" → reload
- "press enter" → press Enter
- "wait 2 seconds" → wait 2000`

// maxSnapshotContext bounds how much accessibility-tree text is sent
// along with the request.
const maxSnapshotContext = 4000

// Result is a translation outcome. Type is "direct" when the input was
// already a CLI command, "nlp" when the model produced it.
type Result struct {
	Type     string `json:"type"`
	Command  string `json:"command"`
	Original string `json:"original,omitempty"`
}

// Translator converts free-form instructions into CLI commands.
type Translator struct {
	client openai.Client
	model  string
}

// New creates a Translator against an OpenAI-compatible endpoint.
func New(baseURL, apiKey, model string) *Translator {
	return &Translator{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		model: model,
	}
}

// IsDirectCommand reports whether the input's first word is a known CLI
// command.
func IsDirectCommand(input string) bool {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return false
	}
	return knownCommands[strings.ToLower(fields[0])]
}

// Translate resolves an instruction to a command, short-circuiting
// direct commands locally. The optional snapshot gives the model page
// context and is truncated to a fixed size.
func (t *Translator) Translate(ctx context.Context, input, snapshot string) (Result, error) {
	if IsDirectCommand(input) {
		return Result{Type: "direct", Command: strings.TrimSpace(input)}, nil
	}

	userContent := input
	if snapshot != "" {
		if len(snapshot) > maxSnapshotContext {
			snapshot = snapshot[:maxSnapshotContext]
		}
		userContent = fmt.Sprintf("Current page accessibility tree:\n%s\n\nUser request: %s", snapshot, input)
	}

	completion, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userContent),
		},
		MaxTokens: openai.Int(200),
	})
	if err != nil {
		return Result{}, fmt.Errorf("translation request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Result{}, fmt.Errorf("translation returned no choices")
	}

	command := CleanCommand(completion.Choices[0].Message.Content)
	if command == "" {
		return Result{}, fmt.Errorf("translation returned empty command")
	}

	return Result{Type: "nlp", Command: command, Original: input}, nil
}

// CleanCommand strips markdown fences and stray backticks some models
// wrap replies in.
func CleanCommand(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.Index(s, "\n"); idx >= 0 && !strings.Contains(s[:idx], " ") {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	s = strings.Trim(s, "`")
	return strings.TrimSpace(s)
}
