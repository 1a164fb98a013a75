package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErrStreamClosed is returned by reads after the artifact has been released
var ErrStreamClosed = errors.New("stream closed")

const defaultChunkSize = 64 * 1024

// StreamOutcome describes how a stream ended
type StreamOutcome struct {
	Completed bool  // every byte was delivered
	Bytes     int64 // bytes delivered
	Err       error // read error or cancellation cause, nil on completion
	RemoveErr error
}

// StreamOptions configures a Stream
type StreamOptions struct {
	ContentType string
	Filename    string
	ChunkSize   int
	// OnClose runs exactly once, after the file has been removed
	OnClose func(StreamOutcome)
}

// Stream exposes an artifact as a cancellable byte sequence. The file is
// removed exactly once: on EOF, on a read error, on Close, or when the
// context is cancelled, whichever comes first. No bytes are returned after
// removal has started.
type Stream struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	sent    int64
	done    bool
	opts    StreamOptions
	stopCtx func() bool
}

// OpenStream takes ownership of the file at path
func OpenStream(ctx context.Context, path string, opts StreamOptions) (*Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}

	s := &Stream{file: file, path: path, size: info.Size(), opts: opts}
	// Held so an already-cancelled context cannot release before stopCtx is set
	s.mu.Lock()
	s.stopCtx = context.AfterFunc(ctx, func() {
		s.abort(context.Cause(ctx))
	})
	s.mu.Unlock()
	return s, nil
}

// Size is the artifact size in bytes
func (s *Stream) Size() int64 { return s.size }

// ContentType of the artifact
func (s *Stream) ContentType() string { return s.opts.ContentType }

// Filename suggested to the caller
func (s *Stream) Filename() string { return s.opts.Filename }

// Path of the underlying file, valid until the stream is released
func (s *Stream) Path() string { return s.path }

// Read implements io.Reader
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return 0, ErrStreamClosed
	}

	n, err := s.file.Read(p)
	s.sent += int64(n)
	if err == nil {
		s.mu.Unlock()
		return n, nil
	}

	var outcome StreamOutcome
	if errors.Is(err, io.EOF) {
		outcome = s.releaseLocked(nil, true)
	} else {
		outcome = s.releaseLocked(err, false)
	}
	s.mu.Unlock()
	s.notify(outcome)
	return n, err
}

// Close releases the stream early. It is safe to call more than once.
func (s *Stream) Close() error {
	s.abort(context.Canceled)
	return nil
}

// WriteTo copies the artifact to w in chunks, flushing after each chunk when
// w supports it. It stops at the first cancellation or write error.
func (s *Stream) WriteTo(w io.Writer) (int64, error) {
	flusher, _ := w.(interface{ Flush() })
	buf := make([]byte, s.opts.ChunkSize)

	var written int64
	for {
		n, readErr := s.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				s.abort(err)
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, readErr
		}
	}
}

func (s *Stream) abort(cause error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	if cause == nil {
		cause = context.Canceled
	}
	outcome := s.releaseLocked(cause, false)
	s.mu.Unlock()
	s.notify(outcome)
}

// releaseLocked closes and removes the file. Caller holds s.mu.
func (s *Stream) releaseLocked(cause error, completed bool) StreamOutcome {
	s.done = true
	s.file.Close()
	outcome := StreamOutcome{Completed: completed, Bytes: s.sent, Err: cause}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		outcome.RemoveErr = err
	}
	return outcome
}

func (s *Stream) notify(outcome StreamOutcome) {
	if s.stopCtx != nil {
		s.stopCtx()
	}
	if s.opts.OnClose != nil {
		s.opts.OnClose(outcome)
	}
}
