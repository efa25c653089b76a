// Package entrypoint implements the HTTP surface: request normalization,
// content-type and safety gates, response negotiation between aggregate
// JSON and SSE streaming, and the /ask, /ask/dry-explain, /ask/stream, and
// /ask/replay/{id} routes.
package entrypoint

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/agentflow-router/router"
)

// ChatTurn is one message in a chat-shaped prompt.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// rawRequest is the union of every accepted wire shape plus legacy field
// aliases. Exactly one of Prompt (a string or a list of turns)/Input/
// Message/Text/Query/Q should be populated; NormalizeBody picks the first populated one in a
// fixed precedence order.
type rawRequest struct {
	Prompt        json.RawMessage `json:"prompt"`
	Input         *inputObject    `json:"input"`
	Message       string          `json:"message"`
	Text          string          `json:"text"`
	Query         string          `json:"query"`
	Q             string          `json:"q"`
	Model         string          `json:"model"`
	ModelOverride string          `json:"model_override"`
	Stream        bool            `json:"stream"`
	DryRun        bool            `json:"dry_run"`
	Attachments   []any           `json:"attachments"`
	RetrievedDocs []string        `json:"retrieved_docs"`
	OpsFilesCount int             `json:"ops_files_count"`
}

type inputObject struct {
	Prompt   string          `json:"prompt"`
	Text     string          `json:"text"`
	Messages []ChatTurn      `json:"messages"`
	Raw      json.RawMessage `json:"-"`
}

// Normalized is the entrypoint's canonical, router-ready view of a request.
type Normalized struct {
	Prompt         string
	Shape          router.Shape
	NormalizedFrom string
	Override       string
	Stream         bool
	DryRun         bool
	HasAttachments bool
	RetrievedDocs  []string
	OpsFilesCount  int
}

// NormalizeBody parses a JSON request body into Normalized, coercing every
// accepted shape into a flat prompt string while recording which shape and
// field path it came from for the golden trace's normalized_from field.
func NormalizeBody(body []byte) (Normalized, error) {
	var raw rawRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return Normalized{}, router.NewError(router.ErrInvalidRequest, "malformed JSON body").WithCause(err)
	}

	n := Normalized{
		Override:       firstNonEmpty(raw.Model, raw.ModelOverride),
		Stream:         raw.Stream,
		DryRun:         raw.DryRun,
		HasAttachments: len(raw.Attachments) > 0,
		RetrievedDocs:  raw.RetrievedDocs,
		OpsFilesCount:  raw.OpsFilesCount,
	}

	switch {
	case len(raw.Prompt) > 0:
		if err := normalizePromptField(raw.Prompt, &n); err != nil {
			return Normalized{}, err
		}
	case raw.Input != nil:
		normalizeInputObject(raw.Input, &n)
	case raw.Message != "":
		n.Prompt, n.Shape, n.NormalizedFrom = raw.Message, router.ShapeText, "message"
	case raw.Text != "":
		n.Prompt, n.Shape, n.NormalizedFrom = raw.Text, router.ShapeText, "text"
	case raw.Query != "":
		n.Prompt, n.Shape, n.NormalizedFrom = raw.Query, router.ShapeText, "query"
	case raw.Q != "":
		n.Prompt, n.Shape, n.NormalizedFrom = raw.Q, router.ShapeText, "q"
	default:
		return Normalized{}, router.NewError(router.ErrEmptyPrompt, "no recognized prompt field present")
	}

	if strings.TrimSpace(n.Prompt) == "" {
		return Normalized{}, router.NewError(router.ErrEmptyPrompt, "prompt is empty or whitespace-only")
	}
	return n, nil
}

func normalizePromptField(raw json.RawMessage, n *Normalized) error {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		n.Prompt, n.Shape, n.NormalizedFrom = asString, router.ShapeText, "prompt"
		return nil
	}

	var asTurns []ChatTurn
	if err := json.Unmarshal(raw, &asTurns); err == nil {
		n.Prompt = flattenTurns(asTurns)
		n.Shape = router.ShapeChat
		n.NormalizedFrom = "prompt[]"
		return nil
	}

	return router.NewError(router.ErrInvalidRequest, "prompt must be a string or an array of {role,content}")
}

func normalizeInputObject(in *inputObject, n *Normalized) {
	switch {
	case in.Prompt != "":
		n.Prompt, n.Shape, n.NormalizedFrom = in.Prompt, router.ShapeNested, "input.prompt"
	case in.Text != "":
		n.Prompt, n.Shape, n.NormalizedFrom = in.Text, router.ShapeNested, "input.text"
	case len(in.Messages) > 0:
		n.Prompt = flattenTurns(in.Messages)
		n.Shape, n.NormalizedFrom = router.ShapeNested, "input.messages"
	}
}

func flattenTurns(turns []ChatTurn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		role := t.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "%s: %s", role, t.Content)
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// destructiveMarkers trips the safety precheck that rejects clearly
// destructive content. This is intentionally narrow -- a conservative
// keyword gate, not a content-moderation system.
var destructiveMarkers = []string{"rm -rf /", "drop database", "format c:"}

// SafetyPrecheck rejects prompts containing clearly destructive content.
func SafetyPrecheck(prompt string) error {
	lower := strings.ToLower(prompt)
	for _, m := range destructiveMarkers {
		if strings.Contains(lower, m) {
			return router.NewError(router.ErrBlockedByPolicy, "request blocked by safety precheck")
		}
	}
	return nil
}
