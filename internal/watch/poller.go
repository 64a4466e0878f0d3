// poller.go implements the background change detector.
//
// Every tick the poller computes the most recent modification time under
// the watched path and feeds it through a small state machine that delays
// rendering until a change has settled:
//
//  1. The first tick that observes a newer timestamp only records it. An
//     editor saving several files (or a generator rewriting a tree) usually
//     spans more than one poll interval, and rendering immediately would
//     read a half-written tree.
//  2. If the next tick observes yet another timestamp bump, the write burst
//     is clearly still producing output and a render fires right away; the
//     following ticks pick up whatever else changes.
//  3. If the next tick observes no further change, the burst has settled
//     and the pending render fires.
//
// This is a heuristic, not a guarantee: a burst whose writes straddle ticks
// just right can still be rendered mid-write, and the second-change render
// in step 2 is a known soft spot. The poll interval should be tuned to the
// expected burst duration.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// pollAction is the outcome of feeding one scan result through pollState.
type pollAction int

const (
	// actionNone means nothing changed and nothing is pending.
	actionNone pollAction = iota
	// actionDefer means a change was seen for the first time; rendering
	// waits one more tick for the writes to settle.
	actionDefer
	// actionRender means a render should fire now.
	actionRender
)

// pollState is the mutable state carried across poll ticks. It is owned
// exclusively by the poller goroutine — ticks never overlap because the
// next one is scheduled only after the current one returns — so it needs
// no locking.
type pollState struct {
	// lastModified is the latest observed modification time in Unix
	// milliseconds. It never decreases.
	lastModified int64

	// pendingChanges counts consecutive ticks that observed a change not
	// yet rendered. Reset to zero whenever a render fires.
	pendingChanges int
}

// observe applies one tick's scan result and returns the action to take.
func (s *pollState) observe(currentLM int64) pollAction {
	switch {
	case currentLM > s.lastModified && s.pendingChanges == 0:
		s.lastModified = currentLM
		s.pendingChanges = 1
		return actionDefer
	case currentLM > s.lastModified:
		s.lastModified = currentLM
		s.pendingChanges = 0
		return actionRender
	case s.pendingChanges > 0:
		s.pendingChanges = 0
		return actionRender
	default:
		return actionNone
	}
}

// poller scans target on a fixed delay and invokes render when pollState
// decides a change has settled.
type poller struct {
	log    *slog.Logger
	target string
	delay  time.Duration
	render func(context.Context) error
	state  pollState
}

// run fires ticks until ctx is cancelled. Fixed-delay semantics: the timer
// is reset only after the tick body (including any render) completes, so a
// slow render naturally throttles polling and ticks never overlap.
func (p *poller) run(ctx context.Context) {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.delay)
		}
	}
}

// tick performs one scan-and-decide iteration.
func (p *poller) tick(ctx context.Context) {
	currentLM, err := lastUpdated(p.target, p.state.lastModified)
	if err != nil {
		// The target itself became unreadable mid-session (e.g. the
		// watched file was deleted). Keep the previous timestamp and let
		// a later tick catch up; only the startup scan treats this as
		// fatal.
		p.log.Debug("scan failed", "target", p.target, "error", err)
		return
	}

	switch p.state.observe(currentLM) {
	case actionDefer:
		p.log.Debug("change detected, waiting another tick for writes to settle")
	case actionRender:
		p.log.Debug("change detected, re-rendering")
		if err := p.render(ctx); err != nil {
			p.log.Error("render failed", "error", err)
		}
	case actionNone:
		p.log.Debug("no change")
	}
}

// lastUpdated returns the most recent modification time, in Unix
// milliseconds, of target — and, when target is a directory, of everything
// reachable under it. A failed directory walk (a file vanishing between
// listing and stat, a permission change) silently yields prev for this
// scan. Only a failed stat of target itself is reported as an error.
func lastUpdated(target string, prev int64) (int64, error) {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		latest := prev
		walkErr := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if ms := fi.ModTime().UnixMilli(); ms > latest {
				latest = ms
			}
			return nil
		})
		if walkErr != nil {
			return prev, nil
		}
		return latest, nil
	}

	info, err := os.Stat(target)
	if err != nil {
		return prev, fmt.Errorf("stat watch target %q: %w", target, err)
	}
	return info.ModTime().UnixMilli(), nil
}
