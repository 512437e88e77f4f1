// Package ports declares the interfaces the capture engine and session
// consume but do not implement: the editor command layer, file-upload
// handling, AI-chat fallback, the host webview UI, and the credential
// store. These are named collaborators of the core, kept narrow so the
// core never depends on their concrete implementations.
package ports

import (
	"errors"
	"strings"
)

// ErrNoChatBackend is returned by an AiChatPort implementation that has
// no backend wired in, so callers can distinguish "no AI chat
// available" from a backend-specific failure.
var ErrNoChatBackend = errors.New("ports: no ai chat backend configured")

// CommandPort dispatches editor-integration command text (e.g. "type ...",
// "go to line 42") originating from a remote viewer. Session is the
// opaque per-viewer context the handler may use to reply.
type CommandPort interface {
	HandleCommand(text string, session any) error
}

// FileUploadPort accepts an opaque upload payload that did not parse as
// a known envelope and did not match the supported-command predicate.
type FileUploadPort interface {
	Handle(data []byte, session any) error
}

// AiChatPort forwards free-form text to an AI chat backend and returns
// its reply.
type AiChatPort interface {
	Chat(text string, apiKey string) (string, error)
}

// EditorUiPort posts a message to the host editor's webview, used to
// surface AI-chat replies or error envelopes.
type EditorUiPort interface {
	PostMessage(message map[string]any) error
}

// SecretStore exposes the API key used by AiChatPort without the core
// ever holding or logging it directly.
type SecretStore interface {
	APIKey() (string, error)
}

// supportedCommandVocabulary lists full commands understood by
// CommandPort.HandleCommand, matched case-insensitively.
var supportedCommandVocabulary = []string{
	"undo",
	"redo",
	"save",
	"format",
}

// supportedCommandPrefixes lists prefixes (case-insensitive) that route
// to CommandPort.HandleCommand rather than FileUploadPort.Handle.
var supportedCommandPrefixes = []string{
	"type ",
	"keytap ",
	"go to line",
	"open file",
	"search",
	"replace",
	"@cline",
}

// Supports reports whether text should be routed to CommandPort rather
// than treated as an opaque upload payload. Matching is case-insensitive
// against a fixed vocabulary of full commands, plus a fixed set of
// command prefixes.
func Supports(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, command := range supportedCommandVocabulary {
		if lower == command {
			return true
		}
	}

	for _, prefix := range supportedCommandPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}

	return false
}
