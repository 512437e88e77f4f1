package session

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/care/screenshare/internal/capture"
	"github.com/care/screenshare/internal/inputinjector"
	"github.com/care/screenshare/internal/ports"
)

// outboundBuffer bounds how many pending wire messages a slow viewer
// can accumulate before a frame is dropped rather than blocking the
// engine's delivery loop: subscriber callbacks must never block.
const outboundBuffer = 64

// Conn is the narrow duplex-channel capability a Session needs. A
// *gorilla/websocket.Conn satisfies it directly; its two message-type
// constants (TextMessage=1, BinaryMessage=2) are reused verbatim so
// callers don't need an adapter.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const (
	textMessage   = 1
	binaryMessage = 2
)

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type screenUpdateEnvelope struct {
	Type       string     `json:"type"`
	Image      string     `json:"image"`
	Dimensions dimensions `json:"dimensions"`
}

type screenUpdateChunkEnvelope struct {
	Type        string     `json:"type"`
	Chunk       string     `json:"chunk"`
	ChunkIndex  int        `json:"chunkIndex"`
	TotalChunks int        `json:"totalChunks"`
	Dimensions  dimensions `json:"dimensions"`
	IsLastChunk bool       `json:"isLastChunk"`
}

// Session is the per-viewer adapter: it owns a duplex channel and a
// subscription to the CaptureEngine, and dispatches inbound messages
// to the input injector and the editor/AI/upload ports.
type Session struct {
	id       string
	conn     Conn
	engine   *capture.Engine
	injector inputinjector.Injector

	cmdPort    ports.CommandPort
	uploadPort ports.FileUploadPort
	chatPort   ports.AiChatPort
	uiPort     ports.EditorUiPort
	secrets    ports.SecretStore

	outbound chan []byte
	doneCh   chan struct{}

	unsubscribeMu sync.Mutex
	unsubscribe   func()

	disposeOnce sync.Once
}

// Ports bundles the core's external collaborators a
// Session dispatches to.
type Ports struct {
	Injector   inputinjector.Injector
	Command    ports.CommandPort
	Upload     ports.FileUploadPort
	Chat       ports.AiChatPort
	UI         ports.EditorUiPort
	Secrets    ports.SecretStore
}

// ID returns this session's unique identifier, used to correlate log
// lines for one viewer's connection.
func (s *Session) ID() string { return s.id }

// New creates a Session over conn. Call Run to subscribe to the engine
// and start serving.
func New(conn Conn, engine *capture.Engine, p Ports) *Session {
	return &Session{
		id:         uuid.NewString(),
		conn:       conn,
		engine:     engine,
		injector:   p.Injector,
		cmdPort:    p.Command,
		uploadPort: p.Upload,
		chatPort:   p.Chat,
		uiPort:     p.UI,
		secrets:    p.Secrets,
		outbound:   make(chan []byte, outboundBuffer),
		doneCh:     make(chan struct{}),
	}
}

// Run subscribes to the engine and serves the connection until it
// closes or a read error occurs. It blocks until the session is
// disposed; callers should run it in its own goroutine.
func (s *Session) Run() {
	slog.Info("session: started", "session", s.id)
	unsub := s.engine.Subscribe(s.onFrame)
	s.unsubscribeMu.Lock()
	s.unsubscribe = unsub
	s.unsubscribeMu.Unlock()

	go s.writeLoop()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(messageType, data)
	}

	s.Dispose()
}

// Dispose unsubscribes from the engine, stops the write loop, and
// closes the connection. Idempotent.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		s.unsubscribeMu.Lock()
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.unsubscribeMu.Unlock()

		close(s.doneCh)
		if err := s.conn.Close(); err != nil {
			slog.Debug("session: error closing connection during dispose", "session", s.id, "error", err)
		}
	})
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.doneCh:
			return
		case msg := <-s.outbound:
			if err := s.conn.WriteMessage(textMessage, msg); err != nil {
				slog.Debug("session: write failed, disposing", "session", s.id, "error", err)
				go s.Dispose()
				return
			}
		}
	}
}

// onFrame is the Callback passed to capture.Engine.Subscribe. It never
// blocks: it serializes the delivery into one or more wire messages
// and enqueues them only if the outbound buffer has room for all of
// them, preserving the "all chunks for frame k before frame k+1"
// ordering guarantee by never enqueueing a partial chunk
// set. onFrame is only ever invoked from the engine's single
// serialized task queue, so this is the sole producer for outbound and
// the capacity check below cannot race with another send.
func (s *Session) onFrame(d capture.Delivery) {
	var msgs [][]byte

	if d.Chunks != nil {
		for _, c := range d.Chunks {
			env := screenUpdateChunkEnvelope{
				Type:        "screen-update-chunk",
				Chunk:       base64.StdEncoding.EncodeToString(c.Data),
				ChunkIndex:  c.Index,
				TotalChunks: c.Total,
				Dimensions:  dimensions{Width: d.Dims.Width, Height: d.Dims.Height},
				IsLastChunk: c.IsLastChunk,
			}
			encoded, err := json.Marshal(env)
			if err != nil {
				slog.Error("session: marshal screen-update-chunk", "session", s.id, "error", err)
				return
			}
			msgs = append(msgs, encoded)
		}
	} else {
		env := screenUpdateEnvelope{
			Type:       "screen-update",
			Image:      base64.StdEncoding.EncodeToString(d.Encoded),
			Dimensions: dimensions{Width: d.Dims.Width, Height: d.Dims.Height},
		}
		encoded, err := json.Marshal(env)
		if err != nil {
			slog.Error("session: marshal screen-update", "session", s.id, "error", err)
			return
		}
		msgs = append(msgs, encoded)
	}

	if len(s.outbound)+len(msgs) > cap(s.outbound) {
		slog.Warn("session: outbound buffer full, dropping frame", "session", s.id)
		return
	}
	for _, m := range msgs {
		s.outbound <- m
	}
}

func (s *Session) dispatch(messageType int, data []byte) {
	var msg Message
	switch messageType {
	case binaryMessage:
		msg = ParseBinary(data, ports.Supports)
	case textMessage:
		msg = ParseText(data)
	default:
		return
	}

	switch msg.Kind {
	case KindMouseEvent:
		s.handleMouse(msg.Mouse)
	case KindKeyboardEvent:
		if err := s.injector.TapKey(msg.Keyboard.Key, msg.Keyboard.Modifier); err != nil {
			slog.Error("session: tap key failed", "session", s.id, "error", err)
		}
	case KindQualityUpdate:
		s.engine.UpdateQuality(msg.Quality.Width, msg.Quality.JPEGQuality, msg.Quality.FPS)
	case KindCommand:
		if err := s.cmdPort.HandleCommand(msg.Text, s); err != nil {
			slog.Error("session: command handler failed", "session", s.id, "error", err)
		}
	case KindUpload:
		if err := s.uploadPort.Handle(msg.Raw, s); err != nil {
			slog.Error("session: upload handler failed", "session", s.id, "error", err)
		}
	case KindChat:
		s.handleChat(msg.Text)
	}
}

func (s *Session) handleMouse(m MouseEvent) {
	if m.ScreenWidth <= 0 || m.ScreenHeight <= 0 {
		slog.Error("session: mouse event with non-positive client dimensions", "session", s.id, "width", m.ScreenWidth, "height", m.ScreenHeight)
		return
	}

	real := s.engine.RealSize()
	actualX := m.X * real.Width / m.ScreenWidth
	actualY := m.Y * real.Height / m.ScreenHeight

	if err := s.injector.MoveMouse(actualX, actualY); err != nil {
		slog.Error("session: move mouse failed", "session", s.id, "error", err)
		return
	}

	switch m.EventType {
	case "down":
		if err := s.injector.ToggleMouseButton(inputinjector.StateDown, inputinjector.ButtonLeft); err != nil {
			slog.Error("session: toggle mouse button failed", "session", s.id, "error", err)
		}
	case "up":
		if err := s.injector.ToggleMouseButton(inputinjector.StateUp, inputinjector.ButtonLeft); err != nil {
			slog.Error("session: toggle mouse button failed", "session", s.id, "error", err)
		}
	}
}

func (s *Session) handleChat(text string) {
	apiKey, err := s.secrets.APIKey()
	if err != nil {
		s.postError(fmt.Errorf("session: no api key available: %w", err))
		return
	}

	reply, err := s.chatPort.Chat(text, apiKey)
	if err != nil {
		s.postError(fmt.Errorf("session: ai chat failed: %w", err))
		return
	}

	if err := s.uiPort.PostMessage(map[string]any{"type": "chat-reply", "text": reply}); err != nil {
		slog.Error("session: post chat reply failed", "session", s.id, "error", err)
	}
}

func (s *Session) postError(err error) {
	slog.Error("session: chat error", "session", s.id, "error", err)
	if postErr := s.uiPort.PostMessage(map[string]any{"type": "error", "error": err.Error()}); postErr != nil {
		slog.Error("session: post error message failed", "session", s.id, "error", postErr)
	}
}
