package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// lineBuffer is the per-stream queue depth between a pipe reader and the
// consumer. A full queue blocks the reader, which in turn lets the child
// block on a full pipe; nothing is dropped.
const lineBuffer = 64

// LineFunc receives one decoded output line without its terminator.
type LineFunc func(line string)

// teeFile is an append-only line sink backed by a file.
// Writes after Close are dropped so a late consumer can never touch a
// closed descriptor.
type teeFile struct {
	path string
	temp bool

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
	err    error
}

func newTeeFile(f *os.File, temp bool) *teeFile {
	return &teeFile{
		path: f.Name(),
		temp: temp,
		file: f,
		w:    bufio.NewWriter(f),
	}
}

func (t *teeFile) writeLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.err != nil {
		return
	}
	if _, err := t.w.WriteString(line); err != nil {
		t.err = err
		return
	}
	if err := t.w.WriteByte('\n'); err != nil {
		t.err = err
	}
}

// Close flushes and closes the file. Only the first call has any effect.
func (t *teeFile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return t.err
	}
	t.closed = true
	if err := t.w.Flush(); err != nil && t.err == nil {
		t.err = err
	}
	if err := t.file.Close(); err != nil && t.err == nil {
		t.err = err
	}
	return t.err
}

// stream is one redirected pipe of the child process.
type stream struct {
	name  string
	pipe  *os.File
	sink  LineFunc
	tee   *teeFile
	lines chan string
	done  chan struct{} // closed once every line has been delivered
}

func newStream(name string, pipe *os.File, sink LineFunc, tee *teeFile) *stream {
	return &stream{
		name:  name,
		pipe:  pipe,
		sink:  sink,
		tee:   tee,
		lines: make(chan string, lineBuffer),
		done:  make(chan struct{}),
	}
}

// read decodes the pipe as UTF-8 and queues complete lines until EOF.
func (s *stream) read() error {
	defer close(s.lines)

	r := bufio.NewReader(transform.NewReader(s.pipe, unicode.UTF8BOM.NewDecoder()))
	for {
		text, err := r.ReadString('\n')
		if text != "" {
			s.lines <- strings.TrimRight(text, "\r\n")
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read %s: %w", s.name, err)
		}
	}
}

// deliver hands a line to the callback and then to the tee file.
func (s *stream) deliver(line string) (err error) {
	if s.sink != nil {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s callback panicked: %v", s.name, r)
			}
			s.tee.writeLine(line)
		}()
		s.sink(line)
		return nil
	}
	s.tee.writeLine(line)
	return nil
}

// pump drains stdout and stderr concurrently. Two readers feed their own
// bounded queue; a single consumer delivers lines, so callbacks never run
// concurrently with each other.
type pump struct {
	out, err *stream

	readers  errgroup.Group
	consumed chan struct{}

	// deliverMu is held for each delivery. Once stopped is set under it no
	// further callback runs, and none is still in flight.
	deliverMu sync.Mutex
	stopped   bool

	mu          sync.Mutex
	callbackErr error
}

func startPump(out, errStream *stream) *pump {
	p := &pump{
		out:      out,
		err:      errStream,
		consumed: make(chan struct{}),
	}
	p.readers.Go(out.read)
	p.readers.Go(errStream.read)
	go p.consume()
	return p
}

func (p *pump) consume() {
	defer close(p.consumed)

	outLines, errLines := p.out.lines, p.err.lines
	for outLines != nil || errLines != nil {
		select {
		case line, ok := <-outLines:
			if !ok {
				outLines = nil
				close(p.out.done)
				continue
			}
			p.deliver(p.out, line)
		case line, ok := <-errLines:
			if !ok {
				errLines = nil
				close(p.err.done)
				continue
			}
			p.deliver(p.err, line)
		}
	}
}

// deliver passes line to s unless the pump was stopped; late lines are
// still drained so the readers can finish, but go nowhere.
func (p *pump) deliver(s *stream, line string) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	if p.stopped {
		return
	}
	p.record(s.deliver(line))
}

func (p *pump) record(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	if p.callbackErr == nil {
		p.callbackErr = err
	}
	p.mu.Unlock()
}

// wait blocks until both streams reached end-of-stream and every line was
// delivered, or until grace elapses.
func (p *pump) wait(grace time.Duration) error {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	for _, s := range []*stream{p.out, p.err} {
		select {
		case <-s.done:
		case <-timer.C:
			return fmt.Errorf("%w: %s still open after %s", ErrStreamDrainTimeout, s.name, grace)
		}
	}

	if err := p.readers.Wait(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callbackErr
}

// shutdown closes the read ends of both pipes, which unblocks readers stuck
// on descendants that still hold the write ends, and waits (bounded) for
// the consumer to finish. If it does not finish in time the pump is
// stopped: shutdown waits out the callback in flight and no callback runs
// after it returns.
func (p *pump) shutdown(grace time.Duration) {
	go func() {
		_ = p.out.pipe.Close()
		_ = p.err.pipe.Close()
	}()

	select {
	case <-p.consumed:
	case <-time.After(grace):
		p.deliverMu.Lock()
		p.stopped = true
		p.deliverMu.Unlock()
	}
}
