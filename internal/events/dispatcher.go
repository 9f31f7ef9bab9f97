package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// debugFrameLimit is the frame id after which debug mode asks for shutdown.
const debugFrameLimit = 20

// Handler receives the events of one camera session.
type Handler interface {
	SessionHandle() int32
	HandleEvent(ev Event)
}

// ExitFlag is the process-wide shutdown latch.
type ExitFlag interface {
	IsSet() bool
	Set()
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Source   Source
	Handlers []Handler
	Exit     ExitFlag

	// PollTimeout bounds each wait so the exit flag is observed promptly.
	PollTimeout time.Duration

	// DebugFrames prints every event and requests shutdown after frame 20.
	DebugFrames bool
	DebugOut    io.Writer

	Logger Logger
}

// Dispatcher is the single event dispatch context.
type Dispatcher struct {
	source      Source
	handlers    map[int32]Handler
	exit        ExitFlag
	pollTimeout time.Duration
	debugFrames bool
	debugOut    io.Writer
	logger      Logger
}

// NewDispatcher creates a dispatcher. Handlers are indexed by session handle;
// a later handler with the same handle replaces an earlier one.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{
		source:      opts.Source,
		handlers:    make(map[int32]Handler, len(opts.Handlers)),
		exit:        opts.Exit,
		pollTimeout: opts.PollTimeout,
		debugFrames: opts.DebugFrames,
		debugOut:    opts.DebugOut,
		logger:      opts.Logger,
	}
	for _, h := range opts.Handlers {
		d.handlers[h.SessionHandle()] = h
	}
	if d.pollTimeout <= 0 {
		d.pollTimeout = time.Second
	}
	if d.debugOut == nil {
		d.debugOut = os.Stdout
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// Run drains the source until the exit flag is raised or ctx is cancelled.
// A wait failure other than an interruption raises the exit flag and is
// returned wrapped in ErrPollFailed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("event dispatch started", "handlers", len(d.handlers), "poll_timeout", d.pollTimeout)
	defer d.logger.Info("event dispatch stopped")

	for !d.exit.IsSet() {
		if ctx.Err() != nil {
			d.exit.Set()
			return nil
		}

		ready, err := d.source.Poll(d.pollTimeout)
		if err != nil {
			if errors.Is(err, ErrInterrupted) {
				continue
			}
			d.logger.Error("event poll failed", "error", err)
			d.exit.Set()
			return fmt.Errorf("%w: %w", ErrPollFailed, err)
		}
		if !ready {
			continue
		}

		ev, err := d.source.Dequeue()
		if err != nil {
			d.logger.Error("event dequeue failed", "error", err)
			continue
		}
		d.dispatch(ev)
	}
	return nil
}

func (d *Dispatcher) dispatch(ev Event) {
	if ev.Type != TypeCamReqMgr {
		d.logger.Warn("unhandled event", "type", fmt.Sprintf("0x%X", uint32(ev.Type)))
		return
	}

	if d.debugFrames {
		fmt.Fprintln(d.debugOut, ev.String())
		if ev.FrameID > debugFrameLimit {
			d.exit.Set()
		}
	}

	h, ok := d.handlers[ev.SessionHandle]
	if !ok {
		d.logger.Debug("event for unknown session", "session", ev.SessionHandle)
		return
	}
	h.HandleEvent(ev)
}
