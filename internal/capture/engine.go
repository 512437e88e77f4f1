// Package capture implements the CaptureEngine: the adaptive
// sample -> dedup -> coalesce -> encode -> chunk -> fan-out pipeline,
// plus the rolling metrics and memory accounting it drives.
//
// The engine is a per-process singleton (Initialize/Shutdown), scoped
// to a lazily-initialized global rather than a constructed service
// object. Its sample/dedup/coalesce/encode/emit/controller sequence
// runs on one goroutine (the serialized task queue); only the image
// decode/resize/encode step is offloaded to a worker goroutine.
package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/care/screenshare/internal/chunking"
	"github.com/care/screenshare/internal/dedup"
	"github.com/care/screenshare/internal/imaging"
	"github.com/care/screenshare/internal/memaccount"
	"github.com/care/screenshare/internal/profile"
	"github.com/care/screenshare/internal/quality"
	"github.com/care/screenshare/internal/screensource"
)

// PerformanceCheckInterval is the minimum spacing between quality
// controller invocations.
const PerformanceCheckInterval = 2 * time.Second

// StatsLogInterval is the cadence of the periodic stats-log task that
// resets the rolling drop/sent counters.
const StatsLogInterval = 1 * time.Second

// CoalesceMaxWait bounds how long a pending frame waits before being
// encoded.
const CoalesceMaxWait = 100 * time.Millisecond

// WatchdogCheckInterval is the polling cadence of the sampler watchdog.
const WatchdogCheckInterval = 500 * time.Millisecond

// WatchdogStallFactor is the multiple of the current adaptive interval
// the sampler may go silent for, with subscribers attached, before the
// watchdog treats it as stalled.
const WatchdogStallFactor = 3

// Delivery is what a subscriber callback receives for one emitted
// frame: either a whole encoded frame or an ordered set of chunks,
// never both.
type Delivery struct {
	Dims    quality.ScaledDims
	Encoded []byte
	Chunks  []chunking.Chunk
}

// Callback is a subscriber's frame handler. It must not block; slow
// subscribers are the session's problem, not the
// engine's.
type Callback func(Delivery)

type subscriberEntry struct {
	id uint64
	cb Callback
}

type rawFrame struct {
	data       []byte
	width      int
	height     int
	capturedAt time.Time
}

type encodeResult struct {
	delivery Delivery
	size     int
	dur      time.Duration
	err      error
}

// Engine is the adaptive capture-and-stream pipeline. Construct one
// via Initialize; there is exactly one per process.
type Engine struct {
	source   screensource.Source
	realSize screensource.Size
	prof     profile.Profile

	mu         sync.Mutex
	config     quality.Config
	scaledDims quality.ScaledDims
	subs       []subscriberEntry
	nextSubID  uint64
	running    bool

	metrics    *quality.Metrics
	accountant *memaccount.Accountant

	stopCh       chan struct{}
	tickCh       chan struct{}
	coalesceFire chan struct{}
	encodeDoneCh chan encodeResult
	watchdogFire chan struct{}

	pendingMu sync.Mutex
	pending   *rawFrame

	sampleMu       sync.Mutex
	lastSampleTick time.Time

	encoding      bool
	lastEmit      time.Time
	lastPerfCheck time.Time

	sampleTimer   *time.Timer
	coalesceTimer *time.Timer

	releaseTimersMu sync.Mutex
	releaseTimers   []*time.Timer

	wg sync.WaitGroup
}

var (
	globalMu sync.Mutex
	global   *Engine
)

// Initialize creates the process-wide CaptureEngine. It is an error to
// call it twice without an intervening Shutdown.
func Initialize(source screensource.Source, realSize screensource.Size) (*Engine, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return nil, fmt.Errorf("capture: engine already initialized")
	}

	p := profile.Select(realSize.Width)
	e := &Engine{
		source:     source,
		realSize:   realSize,
		prof:       p,
		config:     quality.FromProfile(p),
		metrics:    quality.NewMetrics(),
		accountant: memaccount.New(),
	}
	e.scaledDims = quality.DeriveScaledDims(e.config.Width, realSize.Width, realSize.Height)

	global = e
	return e, nil
}

// Get returns the process-wide engine, if initialized.
func Get() (*Engine, bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	return global, global != nil
}

// Shutdown stops the sampler loop (if running) and clears the global
// singleton, so a later Initialize starts clean. Safe to call when no
// engine exists.
func Shutdown() {
	globalMu.Lock()
	e := global
	global = nil
	globalMu.Unlock()

	if e == nil {
		return
	}
	e.stopLoop()
	if err := e.source.Close(); err != nil {
		slog.Error("capture: error closing screen source during shutdown", "error", err)
	}
}

// Profile returns the display profile selected for this engine's real
// screen size.
func (e *Engine) Profile() profile.Profile {
	return e.prof
}

// RealSize returns the real display dimensions the engine was created
// with.
func (e *Engine) RealSize() screensource.Size {
	return e.realSize
}

// Config returns a snapshot of the current quality configuration.
func (e *Engine) Config() quality.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}

// ScaledDims returns a snapshot of the current output dimensions.
func (e *Engine) ScaledDims() quality.ScaledDims {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scaledDims
}

// Subscribe registers cb to receive every emitted frame from now on.
// The first subscriber starts the sampler loop; the returned
// unsubscribe function is idempotent and stops the loop when the last
// subscriber leaves.
func (e *Engine) Subscribe(cb Callback) (unsubscribe func()) {
	e.mu.Lock()
	id := e.nextSubID
	e.nextSubID++
	e.subs = append(e.subs, subscriberEntry{id: id, cb: cb})
	startLoop := !e.running && len(e.subs) > 0
	if startLoop {
		e.running = true
	}
	e.mu.Unlock()

	if startLoop {
		e.startLoop()
	}

	var once sync.Once
	return func() {
		once.Do(func() { e.unsubscribe(id) })
	}
}

func (e *Engine) unsubscribe(id uint64) {
	e.mu.Lock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
	stopLoop := e.running && len(e.subs) == 0
	if stopLoop {
		e.running = false
	}
	e.mu.Unlock()

	if stopLoop {
		e.stopLoop()
	}
}

// UpdateQuality applies an external quality-update request. Each
// provided field is accepted independently iff it is both within its
// static bounds and different from the current value; any accepted
// change resets the rolling metrics window.
func (e *Engine) UpdateQuality(width, jpegQuality, fps *int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	if width != nil {
		w := quality.ClampWidth(*width)
		if w == *width && w != e.config.Width {
			e.config.Width = w
			changed = true
		}
	}
	if jpegQuality != nil {
		q := quality.ClampJPEGQuality(*jpegQuality)
		if q == *jpegQuality && q != e.config.JPEGQuality {
			e.config.JPEGQuality = q
			changed = true
		}
	}
	if fps != nil {
		f := quality.ClampFPS(*fps)
		if f == *fps && f != e.config.FPS {
			e.config.FPS = f
			changed = true
		}
	}

	if changed {
		e.scaledDims = quality.DeriveScaledDims(e.config.Width, e.realSize.Width, e.realSize.Height)
		e.metrics.ResetWindow()
	}
}

func (e *Engine) startLoop() {
	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.tickCh = make(chan struct{}, 1)
	e.coalesceFire = make(chan struct{}, 1)
	e.encodeDoneCh = make(chan encodeResult, 1)
	e.watchdogFire = make(chan struct{}, 1)
	e.lastPerfCheck = time.Now()
	e.lastEmit = time.Time{}
	e.mu.Unlock()

	e.sampleMu.Lock()
	e.lastSampleTick = time.Now()
	e.sampleMu.Unlock()

	e.wg.Add(3)
	go e.runLoop()
	go e.statsLogLoop()
	go e.watchdogLoop()
}

func (e *Engine) stopLoop() {
	e.mu.Lock()
	running := e.stopCh != nil
	e.mu.Unlock()
	if !running {
		return
	}

	close(e.stopCh)
	e.wg.Wait()

	if e.sampleTimer != nil {
		e.sampleTimer.Stop()
	}
	if e.coalesceTimer != nil {
		e.coalesceTimer.Stop()
	}
	e.releaseTimersMu.Lock()
	for _, t := range e.releaseTimers {
		t.Stop()
	}
	e.releaseTimers = nil
	e.releaseTimersMu.Unlock()
	e.accountant.Reset()

	e.pendingMu.Lock()
	e.pending = nil
	e.pendingMu.Unlock()

	e.mu.Lock()
	e.stopCh = nil
	e.mu.Unlock()

	e.metrics.ClearLastFrameHash()
	e.metrics.ResetWindow()
}

// runLoop is the engine's single serialized task queue: it samples,
// dedups, coalesces, triggers encode, and emits, all from this one
// goroutine. Only the decode/resize/encode step inside triggerEncode
// runs on a separate goroutine.
func (e *Engine) runLoop() {
	defer e.wg.Done()

	e.scheduleNextSample(e.currentAdaptiveInterval())

	for {
		select {
		case <-e.stopCh:
			return
		case <-e.tickCh:
			e.onSampleTick()
		case <-e.coalesceFire:
			e.triggerEncode()
		case res := <-e.encodeDoneCh:
			e.onEncodeDone(res)
		case <-e.watchdogFire:
			e.onWatchdogFire()
		}
	}
}

func (e *Engine) statsLogLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(StatsLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			snap := e.metrics.Snapshot()
			slog.Info("capture: stats",
				"avg_processing", snap.AvgProcessing,
				"dropped", snap.DroppedFrames,
				"sent", snap.FramesSent,
				"drop_rate", snap.DropRate(),
				"pressure", e.accountant.Pressure(),
			)
			e.metrics.ResetWindow()
		}
	}
}

// watchdogLoop polls for a sampler that has gone silent while
// subscribers are attached: a stuck timer or a wedged screen source
// would otherwise leave viewers on a frozen frame with no log trail.
func (e *Engine) watchdogLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(WatchdogCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			hasSubs := len(e.subs) > 0
			e.mu.Unlock()
			if !hasSubs {
				continue
			}

			threshold := WatchdogStallFactor * e.currentAdaptiveInterval()
			e.sampleMu.Lock()
			stalled := time.Since(e.lastSampleTick) > threshold
			e.sampleMu.Unlock()
			if stalled {
				select {
				case e.watchdogFire <- struct{}{}:
				default:
				}
			}
		}
	}
}

// onWatchdogFire runs on the serialized task queue goroutine: it logs
// the stall and re-arms the sample timer, since the most likely cause
// is a timer that fired into a full tickCh and was dropped.
func (e *Engine) onWatchdogFire() {
	e.sampleMu.Lock()
	since := time.Since(e.lastSampleTick)
	e.sampleMu.Unlock()

	slog.Warn("capture: sampler stalled, re-arming", "since_last_sample", since)

	if e.sampleTimer != nil {
		e.sampleTimer.Stop()
	}
	e.scheduleNextSample(0)
}

func (e *Engine) scheduleNextSample(delay time.Duration) {
	e.sampleTimer = time.AfterFunc(delay, func() {
		select {
		case e.tickCh <- struct{}{}:
		default:
		}
	})
}

// currentAdaptiveInterval computes the minimum spacing between emitted
// frames.
func (e *Engine) currentAdaptiveInterval() time.Duration {
	e.mu.Lock()
	fps := e.config.FPS
	e.mu.Unlock()
	return e.adaptiveIntervalForFPS(fps)
}

// currentAdaptiveIntervalLocked is currentAdaptiveInterval for callers
// already holding e.mu. It must not itself lock e.mu.
func (e *Engine) currentAdaptiveIntervalLocked() time.Duration {
	return e.adaptiveIntervalForFPS(e.config.FPS)
}

// adaptiveIntervalForFPS is the shared computation behind both
// currentAdaptiveInterval and currentAdaptiveIntervalLocked; it touches
// no engine field guarded by e.mu, so both may call it regardless of
// whether they hold the lock.
func (e *Engine) adaptiveIntervalForFPS(fps int) time.Duration {
	base := 33 * time.Millisecond
	switch {
	case e.realSize.Width >= 3840:
		base = 50 * time.Millisecond
	case e.realSize.Width >= 2560:
		base = 40 * time.Millisecond
	}

	if e.accountant.Pressure() {
		base = time.Duration(float64(base) * 1.5)
	}

	avg := e.metrics.Snapshot().AvgProcessing
	if float64(avg) > 0.7*float64(base) {
		scaled := time.Duration(float64(avg) * 1.2)
		if scaled > base {
			base = scaled
		}
	}

	minByFPS := time.Second / time.Duration(fps)
	if minByFPS > base {
		return minByFPS
	}
	return base
}

func (e *Engine) onSampleTick() {
	interval := e.currentAdaptiveInterval()
	defer e.scheduleNextSample(interval)

	e.sampleMu.Lock()
	e.lastSampleTick = time.Now()
	e.sampleMu.Unlock()

	e.mu.Lock()
	busy := e.encoding
	e.mu.Unlock()

	elapsed := time.Since(e.lastEmit)
	pressure := e.accountant.Pressure()

	skip := busy ||
		(!e.lastEmit.IsZero() && elapsed < interval) ||
		(pressure && !e.lastEmit.IsZero() && elapsed < time.Duration(1.5*float64(interval)))
	if skip {
		e.metrics.IncrementDropped()
		return
	}

	raw, size, err := e.source.Capture()
	if err != nil {
		slog.Error("capture: screen source capture failed", "error", err)
		e.metrics.IncrementDropped()
		return
	}

	hash := dedup.FrameHash(raw)
	if last, ok := e.metrics.LastFrameHash(); ok && last == hash {
		e.metrics.IncrementDropped()
		return
	}
	e.metrics.SetLastFrameHash(hash)

	e.pendingMu.Lock()
	e.pending = &rawFrame{data: raw, width: size.Width, height: size.Height, capturedAt: time.Now()}
	armed := e.coalesceTimer != nil
	e.pendingMu.Unlock()

	if !armed {
		e.armCoalesceTimer(CoalesceMaxWait)
	}
}

func (e *Engine) armCoalesceTimer(wait time.Duration) {
	e.pendingMu.Lock()
	if e.coalesceTimer != nil {
		e.pendingMu.Unlock()
		return
	}
	e.coalesceTimer = time.AfterFunc(wait, func() {
		e.pendingMu.Lock()
		e.coalesceTimer = nil
		e.pendingMu.Unlock()
		select {
		case e.coalesceFire <- struct{}{}:
		default:
		}
	})
	e.pendingMu.Unlock()
}

// triggerEncode picks the most recent pending frame, discards nothing
// else (there is only ever one), and offloads decode/resize/encode to
// a worker goroutine.
func (e *Engine) triggerEncode() {
	e.mu.Lock()
	if e.encoding {
		e.mu.Unlock()
		return
	}
	e.encoding = true
	cfg := e.config
	dims := e.scaledDims
	e.mu.Unlock()

	e.pendingMu.Lock()
	frame := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	if frame == nil {
		e.mu.Lock()
		e.encoding = false
		e.mu.Unlock()
		return
	}

	avgProcessing := e.metrics.Snapshot().AvgProcessing
	minFrameInterval := time.Second / time.Duration(maxInt(cfg.FPS, 1))

	filter := imaging.FilterBilinear
	if float64(avgProcessing) > 0.8*float64(minFrameInterval) {
		filter = imaging.FilterNearest
	}

	encodeQuality := cfg.JPEGQuality
	if e.metrics.RecentHighMotion(5, time.Duration(0.7*float64(minFrameInterval))) {
		encodeQuality = quality.ClampJPEGQuality(encodeQuality - 10)
	}

	go func() {
		start := time.Now()
		res := encodeResult{}

		img, err := imaging.Decode(frame.data, frame.width, frame.height)
		if err != nil {
			res.err = err
			e.encodeDoneCh <- res
			return
		}
		resized := imaging.Resize(img, dims.Width, dims.Height, filter)
		encoded, err := imaging.EncodeJPEG(resized, encodeQuality)
		if err != nil {
			res.err = err
			e.encodeDoneCh <- res
			return
		}

		res.size = len(encoded)
		res.dur = time.Since(start)
		if chunking.ShouldChunk(len(encoded), e.prof.MaxFrameKB) {
			res.delivery = Delivery{Dims: dims, Chunks: chunking.Split(encoded)}
		} else {
			res.delivery = Delivery{Dims: dims, Encoded: encoded}
		}
		e.encodeDoneCh <- res
	}()
}

func (e *Engine) onEncodeDone(res encodeResult) {
	e.mu.Lock()
	e.encoding = false
	e.mu.Unlock()

	if res.err != nil {
		slog.Error("capture: encode failed", "error", res.err)
		e.metrics.IncrementDropped()
		e.maybeRearmCoalesce()
		return
	}

	e.deliver(res.delivery)

	now := time.Now()
	e.metrics.RecordSent(now)
	e.metrics.RecordProcessingTime(res.dur)
	e.lastEmit = now

	e.accountant.Add(res.size)
	e.scheduleDelayedRelease(res.size)

	e.maybeRunController()
	e.maybeRearmCoalesce()
}

// deliver invokes every subscriber callback, in subscription order,
// exactly once.
func (e *Engine) deliver(d Delivery) {
	e.mu.Lock()
	subs := make([]subscriberEntry, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		s.cb(d)
	}
}

func (e *Engine) scheduleDelayedRelease(size int) {
	var t *time.Timer
	t = time.AfterFunc(1*time.Second, func() {
		e.accountant.Release(size)
		e.releaseTimersMu.Lock()
		for i, rt := range e.releaseTimers {
			if rt == t {
				e.releaseTimers = append(e.releaseTimers[:i], e.releaseTimers[i+1:]...)
				break
			}
		}
		e.releaseTimersMu.Unlock()
	})
	e.releaseTimersMu.Lock()
	e.releaseTimers = append(e.releaseTimers, t)
	e.releaseTimersMu.Unlock()
}

func (e *Engine) maybeRearmCoalesce() {
	e.pendingMu.Lock()
	hasPending := e.pending != nil
	e.pendingMu.Unlock()
	if !hasPending {
		return
	}

	interval := e.currentAdaptiveInterval()
	wait := CoalesceMaxWait
	if interval < wait {
		wait = interval
	}
	e.armCoalesceTimer(wait)
}

func (e *Engine) maybeRunController() {
	if time.Since(e.lastPerfCheck) < PerformanceCheckInterval {
		return
	}
	e.lastPerfCheck = time.Now()

	snap := e.metrics.Snapshot()
	e.mu.Lock()
	cfg := e.config
	adaptive := e.currentAdaptiveIntervalLocked()
	highRes := e.realSize.Width >= 3840
	pressure := e.accountant.Pressure()

	decision := quality.Adjust(quality.Inputs{
		AvgProcessing:    snap.AvgProcessing,
		AdaptiveInterval: adaptive,
		DropRate:         snap.DropRate(),
		Pressure:         pressure,
		HighRes:          highRes,
	})

	switch decision.Action {
	case quality.Degrade:
		e.config = quality.ApplyDegrade(cfg, decision)
	case quality.Improve:
		e.config = quality.ApplyImprove(cfg, decision, e.prof.DefaultWidth)
	}
	if decision.Action != quality.NoOp {
		e.scaledDims = quality.DeriveScaledDims(e.config.Width, e.realSize.Width, e.realSize.Height)
	}
	e.mu.Unlock()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
