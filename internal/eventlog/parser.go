// Package eventlog parses JSON-lines stage event logs for import into the
// event store.
//
// Each line is one JSON object:
//
//	{"id":"e1","story_id":"S-1","stage":"implement","kind":"failed","detail":{"error":"exit 1"},"actor":"ci","created_at":"2026-10-19T12:00:00Z"}
//
// The detail field may be a string or an object; objects are kept as raw
// JSON for [engine.DetailText] to decode at replay. created_at may be an
// RFC 3339 string or unix seconds.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"storyflow/internal/engine"
)

// ErrIncomplete is returned by [ParseSingle] for a line missing a required field.
var ErrIncomplete = errors.New("event line is missing story_id, stage or kind")

// Entry is one parsed log line: the owning story plus the event.
type Entry struct {
	StoryID string
	Event   engine.Event
}

// line is the on-disk JSON shape.
type line struct {
	ID        string          `json:"id"`
	StoryID   string          `json:"story_id"`
	Stage     string          `json:"stage"`
	StageID   string          `json:"stage_id"`
	Kind      string          `json:"kind"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	Actor     string          `json:"actor"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// Parser reads JSON-lines event logs.
//
// The channel returned by Parse is closed when the reader is exhausted or a
// read error occurs. Blank lines, malformed JSON, lines missing a required
// field and lines longer than the buffer are skipped.
type Parser interface {
	Parse(reader io.Reader) <-chan Entry
}

// DefaultParser implements [Parser] with a buffered line reader.
type DefaultParser struct {
	// BufferSize is the maximum size in bytes for a single line, not
	// counting the line ending. Longer lines are skipped.
	// Defaults to 1MB if not set or <= 0.
	BufferSize int

	// Skipped counts lines dropped during the last Parse. It is only
	// safe to read after the channel has been drained.
	Skipped int

	err error
}

// NewParser creates a [DefaultParser] with default settings.
func NewParser() *DefaultParser {
	return &DefaultParser{BufferSize: defaultBufferSize}
}

const defaultBufferSize = 1024 * 1024

// Err returns the read error that ended the last Parse early, or nil when
// the reader was consumed to the end. Like Skipped, it is only safe to call
// after the channel has been drained.
func (p *DefaultParser) Err() error {
	return p.err
}

// Parse reads JSON lines from reader and emits an [Entry] per valid line.
func (p *DefaultParser) Parse(reader io.Reader) <-chan Entry {
	entries := make(chan Entry)
	p.Skipped = 0
	p.err = nil

	go func() {
		defer close(entries)

		maxLine := p.BufferSize
		if maxLine <= 0 {
			maxLine = defaultBufferSize
		}
		br := bufio.NewReaderSize(reader, min(64*1024, maxLine))

		for {
			raw, tooLong, err := readLine(br, maxLine)
			if tooLong {
				p.Skipped++
			} else if text := strings.TrimSpace(string(raw)); text != "" {
				entry, perr := ParseSingle(text)
				if perr != nil {
					p.Skipped++
				} else {
					entries <- entry
				}
			}

			if err != nil {
				if err != io.EOF {
					p.err = fmt.Errorf("failed to read event log: %w", err)
				}
				return
			}
		}
	}()

	return entries
}

// readLine returns the next line without its line ending. A line longer
// than maxLine is consumed and reported as tooLong with no data.
func readLine(br *bufio.Reader, maxLine int) ([]byte, bool, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			line = append(line, chunk...)
			// Two extra bytes leave room for a CRLF ending.
			if len(line) > maxLine+2 {
				line, tooLong = nil, true
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > maxLine {
			line, tooLong = nil, true
		}
		return line, tooLong, err
	}
}

// ParseSingle parses one JSON line into an [Entry]. Unlike [Parser.Parse],
// it reports malformed input instead of skipping it.
func ParseSingle(text string) (Entry, error) {
	var l line
	if err := json.Unmarshal([]byte(text), &l); err != nil {
		return Entry{}, fmt.Errorf("failed to parse event line: %w", err)
	}

	stage := l.Stage
	if stage == "" {
		stage = l.StageID
	}
	if l.StoryID == "" || stage == "" || l.Kind == "" {
		return Entry{}, ErrIncomplete
	}

	created, err := parseTimestamp(l.CreatedAt)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		StoryID: l.StoryID,
		Event: engine.Event{
			ID:        l.ID,
			StageID:   stage,
			Kind:      engine.EventKind(strings.ToLower(l.Kind)),
			Detail:    detailString(l.Detail),
			Actor:     l.Actor,
			CreatedAt: created,
		},
	}, nil
}

func detailString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("failed to parse event line: created_at is required")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse created_at: %w", err)
		}
		return t, nil
	}

	var secs float64
	if err := json.Unmarshal(raw, &secs); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9)).UTC(), nil
}
