package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrWorkflowFailed means the run finished with status "failed"
	ErrWorkflowFailed = errors.New("workflow reported failure")
	// ErrIncompleteStream means the stream ended without a successful terminal event
	ErrIncompleteStream = errors.New("stream ended without a successful workflow_finished event")
	// ErrStreamInterrupted means the body could not be read to the end
	ErrStreamInterrupted = errors.New("stream interrupted")
)

const dataPrefix = "data:"

// StreamParser folds server-sent event lines into one ExecutionRecord
type StreamParser struct {
	record *ExecutionRecord
}

func NewStreamParser() *StreamParser {
	return &StreamParser{record: newExecutionRecord()}
}

// Feed consumes one line and reports whether the record is terminal.
func (p *StreamParser) Feed(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return p.record.Terminal()
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return p.record.Terminal()
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	ev, err := DecodeEvent([]byte(payload))
	if err != nil {
		p.record.Warnings = append(p.record.Warnings, err.Error())
		return p.record.Terminal()
	}

	if p.record.Terminal() {
		p.record.IgnoredAfterTerminal++
		return true
	}

	p.record.Events = append(p.record.Events, []byte(payload))
	p.record.apply(ev)
	return p.record.Terminal()
}

// Record returns the accumulator, terminal or not
func (p *StreamParser) Record() *ExecutionRecord {
	return p.record
}

// Result classifies the record's final state
func (p *StreamParser) Result() (*ExecutionRecord, error) {
	switch p.record.Status {
	case StatusSucceeded:
		return p.record, nil
	case StatusFailed:
		if p.record.Error != "" {
			return p.record, fmt.Errorf("%w: %s", ErrWorkflowFailed, p.record.Error)
		}
		return p.record, ErrWorkflowFailed
	case StatusPending:
		return p.record, ErrIncompleteStream
	default:
		return p.record, fmt.Errorf("%w: terminal status %q", ErrIncompleteStream, p.record.Status)
	}
}

// ParseStream reads r until exhaustion or workflow_finished. The partial
// record is returned with every error.
func ParseStream(ctx context.Context, r io.Reader) (*ExecutionRecord, error) {
	p := NewStreamParser()
	br := bufio.NewReaderSize(r, 64<<10)

	for {
		if err := ctx.Err(); err != nil {
			return p.Record(), err
		}

		line, err := br.ReadString('\n')
		if line != "" && p.Feed(line) {
			return p.Result()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return p.Result()
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return p.Record(), ctxErr
			}
			return p.Record(), fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}
	}
}
