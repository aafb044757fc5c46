package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ServeStdio reads newline-delimited JSON-RPC messages from in and writes one
// response line per request to out. It returns nil when in reaches EOF and
// ctx.Err() when ctx is cancelled first.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReader(in)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	w := &lineWriter{w: out}
	s.logger.Info("mcp: stdio transport ready")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("mcp: read stdin: %w", err)
				default:
					s.logger.Info("mcp: stdin closed")
					return nil
				}
			}
			resp := s.Handle(ctx, line)
			if resp == nil {
				continue
			}
			if err := w.writeLine(resp); err != nil {
				return fmt.Errorf("mcp: write stdout: %w", err)
			}
		}
	}
}

type lineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lineWriter) writeLine(p []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	buf := make([]byte, 0, len(p)+1)
	buf = append(buf, p...)
	buf = append(buf, '\n')
	_, err := lw.w.Write(buf)
	return err
}
