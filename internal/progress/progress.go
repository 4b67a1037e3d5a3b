// Package progress reports processed/total file counts.
package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Reporter observes the extraction loop.
type Reporter interface {
	Step(rows int)
	Finish()
}

// New picks a bar for interactive stderr and a log reporter otherwise.
// Disabled reporting still logs the final count.
func New(total int, enabled bool) Reporter {
	if enabled && isTerminal(os.Stderr) {
		return NewBar(os.Stderr, total)
	}
	every := total / 20
	if every < 1 {
		every = 1
	}
	if !enabled {
		every = total + 1
	}
	return NewLog(log.Logger, total, every, 30*time.Second)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type bar struct {
	b *progressbar.ProgressBar
}

func NewBar(w io.Writer, total int) Reporter {
	return &bar{b: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("extract"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)}
}

func (b *bar) Step(int) { _ = b.b.Add(1) }
func (b *bar) Finish()  { _ = b.b.Finish() }

// Log writes a progress line every `every` files or `interval`, whichever
// comes first.
type Log struct {
	l        zerolog.Logger
	total    int
	every    int
	interval time.Duration

	done  int
	rows  int64
	start time.Time
	last  time.Time
	now   func() time.Time
}

func NewLog(l zerolog.Logger, total, every int, interval time.Duration) *Log {
	now := time.Now()
	return &Log{l: l, total: total, every: every, interval: interval, start: now, last: now, now: time.Now}
}

func (p *Log) Step(rows int) {
	p.done++
	p.rows += int64(rows)
	now := p.now()
	if p.done%p.every == 0 || now.Sub(p.last) >= p.interval {
		p.last = now
		p.emit(zerolog.InfoLevel, "extract: progress")
	}
}

func (p *Log) Finish() {
	p.emit(zerolog.InfoLevel, "extract: progress done")
}

func (p *Log) Done() int { return p.done }

func (p *Log) emit(lvl zerolog.Level, msg string) {
	elapsed := p.now().Sub(p.start)
	e := p.l.WithLevel(lvl).
		Int("done", p.done).
		Int("total", p.total).
		Int64("rows", p.rows).
		Dur("elapsed", elapsed)
	if p.done > 0 && elapsed > 0 {
		e = e.Float64("files_per_sec", float64(p.done)/elapsed.Seconds())
	}
	e.Msg(msg)
}
