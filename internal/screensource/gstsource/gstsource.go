// Package gstsource implements screensource.Source on top of GStreamer
// (github.com/tinyzimmer/go-gst).
//
// Pipeline: ximagesrc (or pipewiresrc under Wayland) -> videoconvert ->
// videoscale -> capsfilter(RGBA) -> appsink. Frames are pulled synchronously from
// Capture: appsink.PullSample blocks the caller until the next buffer
// is ready, so the capture engine's sample step needs no intermediate
// channel or callback.
package gstsource

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/care/screenshare/internal/screensource"
)

// Backend selects the X11 or Wayland capture element.
type Backend int

const (
	BackendX11 Backend = iota
	BackendPipewire
)

// Config configures pipeline construction.
type Config struct {
	Backend    Backend
	Width      int
	Height     int
	DisplayNum int // X11 display index, e.g. 0 for :0. Ignored for Pipewire.
}

// Source is the GStreamer-backed screensource.Source.
type Source struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	size     screensource.Size
	closed   bool
}

// New constructs and starts a capture pipeline, element by element: no
// depay/decode stage is needed since the source is already raw pixels.
func New(cfg Config) (*Source, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstsource: create pipeline: %w", err)
	}

	var srcElement *gst.Element
	switch cfg.Backend {
	case BackendPipewire:
		srcElement, err = gst.NewElement("pipewiresrc")
		if err != nil {
			return nil, fmt.Errorf("gstsource: create pipewiresrc: %w", err)
		}
	default:
		srcElement, err = gst.NewElement("ximagesrc")
		if err != nil {
			return nil, fmt.Errorf("gstsource: create ximagesrc: %w", err)
		}
		srcElement.SetProperty("display-name", fmt.Sprintf(":%d", cfg.DisplayNum))
		srcElement.SetProperty("use-damage", false)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gstsource: create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("gstsource: create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstsource: create capsfilter: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", cfg.Width, cfg.Height)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstsource: create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	pipeline.AddMany(srcElement, converter, scaler, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(srcElement, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstsource: link pipeline elements: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("gstsource: set pipeline playing: %w", err)
	}

	s := &Source{
		pipeline: pipeline,
		appsink:  appsink,
		size:     screensource.Size{Width: cfg.Width, Height: cfg.Height},
	}
	go s.monitorBus()
	return s, nil
}

// Capture blocks until the next frame is available and returns its raw
// RGBA pixels.
func (s *Source) Capture() ([]byte, screensource.Size, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, screensource.Size{}, fmt.Errorf("gstsource: source closed")
	}
	s.mu.Unlock()

	sample := s.appsink.PullSample()
	if sample == nil {
		return nil, screensource.Size{}, fmt.Errorf("gstsource: pull sample: end of stream")
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, screensource.Size{}, fmt.Errorf("gstsource: pull sample: empty buffer")
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()
	data := mapInfo.Bytes()
	if len(data) == 0 {
		return nil, screensource.Size{}, fmt.Errorf("gstsource: pull sample: zero-length buffer")
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	return frame, s.size, nil
}

// Close tears the pipeline down. Idempotent.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstsource: set pipeline null: %w", err)
	}
	return nil
}

// monitorBus logs pipeline errors, classified by category, so
// operators can tell a transient display-server hiccup from a missing
// plugin.
func (s *Source) monitorBus() {
	bus := s.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(200 * time.Millisecond)
		if msg == nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			slog.Warn("gstsource: end of stream on capture pipeline")
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("gstsource: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", classify(gerr.Error()),
			)
		}
	}
}

// classify gives a coarse category for a pipeline error message,
// covering the failure modes a local display source can actually hit
// (no auth, no remote network).
func classify(errMsg string) string {
	lower := strings.ToLower(errMsg)
	switch {
	case containsAny(lower, "permission", "access"):
		return "permission"
	case containsAny(lower, "no such display", "cannot open display", "display"):
		return "display"
	case containsAny(lower, "missing plugin", "no decoder", "caps", "negotiation"):
		return "codec"
	default:
		return "unknown"
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
