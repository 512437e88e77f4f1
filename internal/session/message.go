// Package session implements the per-viewer Session: it subscribes to
// the capture engine, serializes outbound frames as textual envelopes,
// and parses inbound envelopes into a small sum type dispatched to the
// input injector and the editor/AI/upload ports. Every envelope is a
// JSON object carrying a "type" tag that selects how the rest of its
// fields are interpreted.
package session

import "encoding/json"

// envelope is the wire shape every inbound message is first decoded
// into, to read its "type" tag before deciding how to interpret the
// rest of the fields.
type envelope struct {
	Type string `json:"type"`

	// mouse-event
	X            int    `json:"x"`
	Y            int    `json:"y"`
	EventType    string `json:"eventType"`
	ScreenWidth  int    `json:"screenWidth"`
	ScreenHeight int    `json:"screenHeight"`

	// keyboard-event
	Key      string `json:"key"`
	Modifier string `json:"modifier,omitempty"`

	// quality-update
	Width       *int `json:"width,omitempty"`
	JPEGQuality *int `json:"jpegQuality,omitempty"`
	FPS         *int `json:"fps,omitempty"`
}

// Kind identifies which arm of the inbound sum type a Message holds.
type Kind int

const (
	KindMouseEvent Kind = iota
	KindKeyboardEvent
	KindQualityUpdate
	KindCommand
	KindUpload
	KindChat
)

// MouseEvent is a remote pointer action in client screen-space
// coordinates, not yet mapped to the real display.
type MouseEvent struct {
	X, Y                       int
	EventType                  string // "down", "up", "move"
	ScreenWidth, ScreenHeight int
}

// KeyboardEvent is a single remote key tap.
type KeyboardEvent struct {
	Key      string
	Modifier string
}

// QualityUpdate is an external request to change one or more quality
// fields, bypassing the controller.
type QualityUpdate struct {
	Width       *int
	JPEGQuality *int
	FPS         *int
}

// Message is the parsed form of one inbound payload: exactly one of
// the typed fields is meaningful, selected by Kind. Command, Upload,
// and Chat carry their payload as raw text/bytes since those ports
// consume opaque data.
type Message struct {
	Kind Kind

	Mouse    MouseEvent
	Keyboard KeyboardEvent
	Quality  QualityUpdate
	Text     string
	Raw      []byte
}

// ParseBinary implements the inbound binary-payload protocol: attempt
// JSON with a known type first; on parse failure or an unrecognized
// type, fall through to command-or-upload, decided by the
// supports predicate the caller provides.
func ParseBinary(data []byte, supportsCommand func(string) bool) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type != "" {
		if msg, ok := fromEnvelope(env); ok {
			return msg
		}
		// Known JSON shape, unknown type: fall through to the
		// command/upload check below rather than rejecting the message.
	}

	text := string(data)
	if supportsCommand(text) {
		return Message{Kind: KindCommand, Text: text}
	}
	return Message{Kind: KindUpload, Raw: data}
}

// ParseText implements the inbound textual-payload protocol: a
// quality-update envelope is applied directly; anything else is
// free-form chat text.
func ParseText(data []byte) Message {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type == "quality-update" {
		if msg, ok := fromEnvelope(env); ok {
			return msg
		}
	}
	return Message{Kind: KindChat, Text: string(data)}
}

func fromEnvelope(env envelope) (Message, bool) {
	switch env.Type {
	case "mouse-event":
		return Message{Kind: KindMouseEvent, Mouse: MouseEvent{
			X: env.X, Y: env.Y, EventType: env.EventType,
			ScreenWidth: env.ScreenWidth, ScreenHeight: env.ScreenHeight,
		}}, true
	case "keyboard-event":
		return Message{Kind: KindKeyboardEvent, Keyboard: KeyboardEvent{
			Key: env.Key, Modifier: env.Modifier,
		}}, true
	case "quality-update":
		return Message{Kind: KindQualityUpdate, Quality: QualityUpdate{
			Width: env.Width, JPEGQuality: env.JPEGQuality, FPS: env.FPS,
		}}, true
	default:
		return Message{}, false
	}
}
