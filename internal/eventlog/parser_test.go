package eventlog

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyflow/internal/engine"
)

func collect(ch <-chan Entry) []Entry {
	var out []Entry
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestParser_Parse(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"e1","story_id":"S-1","stage":"implement","kind":"started","actor":"agent","created_at":"2026-10-19T12:00:00Z"}`,
		``,
		`not json at all`,
		`{"story_id":"S-1","stage_id":"ci","kind":"FAILED","detail":{"error":"exit 1"},"created_at":1760875260}`,
		`{"story_id":"S-1","kind":"progress","created_at":"2026-10-19T12:00:00Z"}`,
		`{"story_id":"S-2","stage":"review","kind":"started","detail":"please look","created_at":"2026-10-19T12:05:00Z"}`,
		`{"story_id":"S-2","stage":"review","kind":"started","created_at":"tomorrow"}`,
	}, "\n")

	p := NewParser()
	entries := collect(p.Parse(strings.NewReader(input)))

	require.Len(t, entries, 3)
	assert.Equal(t, 3, p.Skipped)

	assert.Equal(t, "S-1", entries[0].StoryID)
	assert.Equal(t, engine.Event{
		ID:        "e1",
		StageID:   "implement",
		Kind:      engine.EventStarted,
		Actor:     "agent",
		CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}, entries[0].Event)

	assert.Equal(t, "ci", entries[1].Event.StageID)
	assert.Equal(t, engine.EventFailed, entries[1].Event.Kind)
	assert.Equal(t, `{"error":"exit 1"}`, entries[1].Event.Detail)
	assert.Equal(t, "exit 1", engine.DetailText(entries[1].Event.Detail))
	assert.Equal(t, time.Unix(1760875260, 0).UTC(), entries[1].Event.CreatedAt)

	assert.Equal(t, "S-2", entries[2].StoryID)
	assert.Equal(t, "please look", entries[2].Event.Detail)
}

func TestParser_EmptyInput(t *testing.T) {
	entries := collect(NewParser().Parse(strings.NewReader("")))

	assert.Empty(t, entries)
}

func TestParser_DefaultBufferSize(t *testing.T) {
	p := &DefaultParser{}
	line := `{"story_id":"S-1","stage":"test","kind":"progress","created_at":"2026-10-19T12:00:00Z"}`

	entries := collect(p.Parse(strings.NewReader(line)))

	assert.Len(t, entries, 1)
}

func TestParser_SkipsOverlongLineAndContinues(t *testing.T) {
	valid := `{"story_id":"S-1","stage":"test","kind":"progress","created_at":"2026-10-19T12:00:00Z"}`
	input := strings.Join([]string{
		valid,
		`{"story_id":"S-1","stage":"test","kind":"progress","detail":"` + strings.Repeat("x", 2*1024*1024) + `","created_at":"2026-10-19T12:00:00Z"}`,
		valid,
		valid,
	}, "\n")

	p := NewParser()
	entries := collect(p.Parse(strings.NewReader(input)))

	assert.Len(t, entries, 3)
	assert.Equal(t, 1, p.Skipped)
	assert.NoError(t, p.Err())
}

func TestParser_BufferSizeBoundsLine(t *testing.T) {
	short := `{"story_id":"S","stage":"test","kind":"reset","created_at":1}`
	long := `{"story_id":"S","stage":"test","kind":"reset","detail":"` + strings.Repeat("y", 64) + `","created_at":1}`
	p := &DefaultParser{BufferSize: len(short)}

	entries := collect(p.Parse(strings.NewReader(short + "\r\n" + long + "\n" + short)))

	assert.Len(t, entries, 2)
	assert.Equal(t, 1, p.Skipped)
}

func TestParser_ReadError(t *testing.T) {
	valid := `{"story_id":"S-1","stage":"test","kind":"progress","created_at":"2026-10-19T12:00:00Z"}` + "\n"
	reader := io.MultiReader(strings.NewReader(valid), iotest.ErrReader(errors.New("disk gone")))

	p := NewParser()
	entries := collect(p.Parse(reader))

	assert.Len(t, entries, 1)
	require.Error(t, p.Err())
	assert.Contains(t, p.Err().Error(), "disk gone")
}

func TestParseSingle(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"valid", `{"story_id":"S","stage":"test","kind":"reset","created_at":"2026-10-19T12:00:00Z"}`, nil},
		{"missing story", `{"stage":"test","kind":"reset","created_at":"2026-10-19T12:00:00Z"}`, ErrIncomplete},
		{"missing kind", `{"story_id":"S","stage":"test","created_at":"2026-10-19T12:00:00Z"}`, ErrIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSingle(tt.line)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParseSingle_Malformed(t *testing.T) {
	_, err := ParseSingle(`{"story_id":`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse event line")
}

func TestParseSingle_MissingTimestamp(t *testing.T) {
	_, err := ParseSingle(`{"story_id":"S","stage":"test","kind":"reset"}`)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "created_at")
}

func TestParseSingle_FractionalUnixSeconds(t *testing.T) {
	e, err := ParseSingle(`{"story_id":"S","stage":"test","kind":"reset","created_at":1760875260.5}`)

	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, e.Event.CreatedAt.Sub(time.Unix(1760875260, 0)))
}
