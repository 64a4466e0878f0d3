// session.go ties the poller and the command reader into one watch session.
//
// Run performs an eager first render, starts the poller in the background,
// then blocks reading line commands from Input until the user exits or the
// stream closes. Shutdown cancels the poller and waits a bounded grace
// period for its goroutine to drain, so a stuck render cannot hold the
// process open forever.
package watch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/treykane/mdwatch/internal/logging"
)

const (
	// DefaultInterval is the poll delay used when a session leaves
	// Interval unset or non-positive.
	DefaultInterval = 350 * time.Millisecond

	// DefaultGrace bounds the shutdown wait for the poller goroutine.
	DefaultGrace = 2 * time.Second

	// maxEchoWidth limits how much of an unrecognized command is echoed
	// back, so a stray paste does not flood the terminal.
	maxEchoWidth = 80

	// maxCommandLine bounds a single input line. bufio.Scanner's default
	// 64 KiB cap would otherwise turn a long pasted line into a read
	// error that silently ends the session instead of an unknown-command
	// message.
	maxCommandLine = 1 << 20
)

var (
	promptStyle  = lipgloss.NewStyle().Bold(true)
	commandStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Session runs one watch invocation over Target. Render is invoked once
// synchronously at startup and again from the poller whenever a change
// settles; the two never run concurrently because the poller's first tick
// can at most record a pending change, and ticks never overlap. Callers
// configure a Session by filling the struct and calling Run once.
type Session struct {
	// Target is the file or directory to watch. Required.
	Target string

	// Interval is the fixed delay between poll ticks. Non-positive values
	// fall back to DefaultInterval.
	Interval time.Duration

	// Grace bounds the shutdown wait for the poller. Non-positive values
	// fall back to DefaultGrace.
	Grace time.Duration

	// Render produces the output. Required. Errors are logged, never
	// fatal: a broken source should not kill the watch loop.
	Render func(context.Context) error

	// OnFirstRender, if set, runs exactly once, right after the initial
	// render completes.
	OnFirstRender func()

	// Input is the command stream. Defaults to os.Stdin.
	Input io.Reader

	// Output receives user-facing messages. Defaults to os.Stdout.
	Output io.Writer

	// Log overrides the session logger. Defaults to the shared "watch"
	// component logger.
	Log *slog.Logger
}

// Run executes the session and blocks until the user exits or Input
// closes. It returns an error only when the target cannot be scanned at
// startup, or when ctx is cancelled while waiting for the poller to stop.
func (s *Session) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = logging.New("watch")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	// Establish the baseline before the poller starts, so the very first
	// tick compares against the tree as it was at session start. An
	// unreadable target here is a configuration error, not a transient.
	baseline, err := lastUpdated(s.Target, -1)
	if err != nil {
		return fmt.Errorf("watch target unavailable: %w", err)
	}

	p := &poller{
		log:    log,
		target: s.Target,
		delay:  interval,
		render: s.Render,
		state:  pollState{lastModified: baseline},
	}

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.run(pollCtx)
	}()
	log.Debug("watching", "target", s.Target, "interval", interval)

	s.commandLoop(ctx, log)

	cancel()
	grace := s.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		log.Warn("poller did not stop within grace period", "grace", grace)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// commandLoop renders once unconditionally, then blocks reading commands
// until an exit command or the end of the input stream.
func (s *Session) commandLoop(ctx context.Context, log *slog.Logger) {
	if err := s.Render(ctx); err != nil {
		log.Error("initial render failed", "error", err)
	}
	if s.OnFirstRender != nil {
		s.OnFirstRender()
	}

	out := s.output()
	fmt.Fprintln(out, promptStyle.Render("Type")+" "+commandStyle.Render("[refresh|exit]")+" "+promptStyle.Render("to force a render or exit"))

	scanner := bufio.NewScanner(s.input())
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxCommandLine)
	for scanner.Scan() {
		switch line := scanner.Text(); line {
		case "", "r", "refresh":
			if err := s.Render(ctx); err != nil {
				log.Error("render failed", "error", err)
			}
		case "exit", "quit", "q":
			return
		default:
			echoed := runewidth.Truncate(line, maxEchoWidth, "…")
			fmt.Fprintln(out, errStyle.Render(fmt.Sprintf("Unknown command %q, type: [refresh|exit]", echoed)))
		}
	}
	// EOF and read errors both end the session gracefully: a closed stdin
	// means whoever drives us has gone away.
	if err := scanner.Err(); err != nil {
		log.Debug("exiting command loop", "error", err)
		return
	}
	log.Debug("input closed, exiting command loop")
}

func (s *Session) input() io.Reader {
	if s.Input != nil {
		return s.Input
	}
	return os.Stdin
}

func (s *Session) output() io.Writer {
	if s.Output != nil {
		return s.Output
	}
	return os.Stdout
}
