// Package daemon implements the Daemon and Batch Controller: a
// single-threaded cooperative request loop over line-delimited JSON on
// stdin/stdout, plus the batch mini-language that chains core commands
// within one request.
package daemon

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"nexus/internal/logging"
	"nexus/internal/model"
)

// defaultWatchdog bounds a command with no explicit timeout_ms.
const defaultWatchdog = 15 * time.Second

// Dispatcher executes one already-parsed request and returns its response.
// internal/core.Core implements this; the daemon package does not import
// core, so the daemon has no dependency on backend/cache/mark wiring.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.Request) model.Response
}

// Closer is implemented by a Dispatcher that owns resources (backend
// sessions) needing an orderly shutdown on quit/signal.
type Closer interface {
	Close(ctx context.Context) error
}

// Daemon runs a one-request-at-a-time loop: one request
// executes end-to-end before the next is read, so the caches, mark
// registry, and backend sessions it wraps need no locking of their own.
type Daemon struct {
	dispatcher Dispatcher
	in         io.Reader
	out        io.Writer
	start      time.Time

	mu       sync.Mutex
	quitting bool
}

// New constructs a Daemon reading requests from in and writing responses to
// out (os.Stdin/os.Stdout in production, pipes in tests).
func New(dispatcher Dispatcher, in io.Reader, out io.Writer) *Daemon {
	return &Daemon{dispatcher: dispatcher, in: in, out: out, start: time.Now()}
}

// Run reads one JSON request per line until stdin closes, quit is
// received, or ctx is cancelled (e.g. by a caught SIGINT/SIGTERM). It never
// returns a non-nil error for a well-formed shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryDaemon)
	scanner := bufio.NewScanner(d.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, parseErr := model.ParseRequestLine(line)
		if parseErr != nil {
			d.write(model.ErrResponse("", model.NewError(model.ErrBadRequest, "malformed request line: %v", parseErr)))
			continue
		}

		resp := d.handleOne(ctx, req)
		d.write(resp)

		d.mu.Lock()
		quitting := d.quitting
		d.mu.Unlock()
		if quitting {
			log.Info("quit requested, shutting down")
			break
		}

		select {
		case <-ctx.Done():
			log.Info("context cancelled, shutting down")
			return d.shutdown(context.Background())
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		log.Error("stdin read error: %v", err)
	}
	return d.shutdown(context.Background())
}

// RunWithSignals runs the daemon loop and arranges for SIGINT/SIGTERM to
// perform the same graceful shutdown as an explicit quit command.
func (d *Daemon) RunWithSignals() error {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	return d.Run(ctx)
}

func (d *Daemon) handleOne(ctx context.Context, req model.Request) model.Response {
	log := logging.Get(logging.CategoryDaemon)
	requestID := uuid.NewString()
	audit := logging.AuditWithRequest(requestID)
	audit.DaemonRequest(req.Command)

	switch req.Command {
	case "ping":
		return model.OKResponse("ping", map[string]any{"uptime_ms": time.Since(d.start).Milliseconds()})
	case "quit":
		d.mu.Lock()
		d.quitting = true
		d.mu.Unlock()
		return model.OKResponse("quit", nil)
	}

	timeout := defaultWatchdog
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var resp model.Response
	if req.Command == "batch" {
		resp = RunBatch(cmdCtx, d.dispatcher, req)
	} else {
		resp = d.dispatcher.Dispatch(cmdCtx, req)
	}
	elapsed := time.Since(start)

	if cmdCtx.Err() == context.DeadlineExceeded {
		log.Warn("command %q exceeded its %v watchdog", req.Command, timeout)
		audit.DaemonTimeout(req.Command, elapsed.Milliseconds())
		resp = model.ErrResponse(req.Command, model.NewError(model.ErrTimeout, "command exceeded its %v timeout", timeout))
	}

	audit.DaemonResponse(req.Command, elapsed.Milliseconds(), resp.OK)
	return resp
}

func (d *Daemon) write(resp model.Response) {
	line, err := resp.MarshalLine()
	if err != nil {
		line, _ = model.ErrResponse(resp.Command, model.NewError(model.ErrInternal, "failed to marshal response: %v", err)).MarshalLine()
	}
	d.out.Write(line)
	d.out.Write([]byte("\n"))
}

func (d *Daemon) shutdown(ctx context.Context) error {
	if closer, ok := d.dispatcher.(Closer); ok {
		if err := closer.Close(ctx); err != nil {
			logging.Get(logging.CategoryDaemon).Warn("error closing backend sessions: %v", err)
		}
	}
	logging.CloseAll()
	logging.CloseAudit()
	return nil
}
