// ABOUTME: Newline-delimited JSON-RPC transport over standard streams with one implicit session.
// ABOUTME: Requests are answered in arrival order; notifications produce no output.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/2389/instantly-mcp/internal/dispatch"
)

// StdioTransport serves one session over a reader/writer pair.
type StdioTransport struct {
	protocol *Protocol
	scope    dispatch.Scope
	reader   *bufio.Reader
	writer   io.Writer
	logger   *slog.Logger

	writeMu sync.Mutex
}

// NewStdioTransport creates a transport. Pass os.Stdin and os.Stdout in
// production; logs must not go to the writer.
func NewStdioTransport(protocol *Protocol, scope dispatch.Scope, r io.Reader, w io.Writer, logger *slog.Logger) *StdioTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		protocol: protocol,
		scope:    scope,
		reader:   bufio.NewReaderSize(r, 64*1024),
		writer:   w,
		logger:   logger.With("component", "stdio"),
	}
}

// oversizedPeek is how much of an oversized line is kept to recover its id.
const oversizedPeek = 4096

// inbound is one line read from the reader. An oversized line carries only
// its leading bytes.
type inbound struct {
	data      []byte
	oversized bool
}

// Serve reads messages until EOF or ctx is done. EOF is a clean shutdown.
func (t *StdioTransport) Serve(ctx context.Context) error {
	lines := make(chan inbound)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		for {
			msg, err := t.readLine()
			if len(msg.data) > 0 {
				select {
				case lines <- msg:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-lines:
			if !ok {
				err := <-readErr
				if errors.Is(err, io.EOF) {
					t.logger.Info("stdin closed")
					return nil
				}
				return fmt.Errorf("reading stdin: %w", err)
			}
			if msg.oversized {
				t.logger.Warn("rejected oversized message", "limit", MaxRequestBodySize)
				if err := t.write(errorResponse(peekID(msg.data), JSONRPCInvalidRequest, "request too large")); err != nil {
					return err
				}
				continue
			}
			if err := t.handleLine(ctx, msg.data); err != nil {
				return err
			}
		}
	}
}

// readLine returns the next line without surrounding whitespace. Input past
// MaxRequestBodySize is discarded as it is read so a runaway line cannot
// exhaust memory.
func (t *StdioTransport) readLine() (inbound, error) {
	var msg inbound
	for {
		frag, err := t.reader.ReadSlice('\n')
		if !msg.oversized {
			msg.data = append(msg.data, frag...)
			if len(bytes.TrimSpace(msg.data)) > MaxRequestBodySize {
				msg.oversized = true
				msg.data = bytes.Clone(bytes.TrimSpace(msg.data)[:oversizedPeek])
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if !msg.oversized {
			msg.data = bytes.TrimSpace(msg.data)
		}
		return msg, err
	}
}

// peekID recovers a top-level "id" from the start of a message that was
// too large to parse whole. It returns nil when the id is not found before
// a member that runs past the prefix.
func peekID(prefix []byte) json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(prefix))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}
		if key == "id" {
			return value
		}
	}
	return nil
}

func (t *StdioTransport) handleLine(ctx context.Context, line []byte) error {
	req, rejected := parseRequest(line)
	if rejected != nil {
		t.logger.Warn("rejected message", "code", rejected.Error.Code, "error", rejected.Error.Message)
		return t.write(rejected)
	}

	t.logger.Debug("request", "method", req.Method, "id", string(req.ID))
	resp := t.protocol.Handle(ctx, t.scope, req)
	if resp == nil {
		return nil
	}
	return t.write(resp)
}

func (t *StdioTransport) write(resp *JSONRPCResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
