// Package streamer wraps a mission run and turns its internal event trace
// into an ordered, newline-delimited JSON event stream a client can tail,
// applying ordering guarantees the executor itself doesn't enforce (no
// events after the terminal one, monotonic progress) as a defensive outer
// layer.
package streamer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/guillermopickman-spec/market-intel-agent/internal/mission"
)

// Sink is where translated events are written: a writer plus an explicit
// flush so every event reaches the client immediately instead of sitting
// in a buffer.
type Sink interface {
	io.Writer
	Flush()
}

// ErrStreamingUnsupported is returned by NewHTTPSink when the response
// writer can't be flushed incrementally.
var ErrStreamingUnsupported = fmt.Errorf("streamer: response writer does not support flushing")

// HTTPSink adapts an http.ResponseWriter into a Sink, setting the headers
// the streaming mission-execution endpoint requires.
type HTTPSink struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewHTTPSink prepares w for NDJSON streaming. It sets Content-Type to
// application/x-ndjson and disables caching/buffering before any event is
// written.
func NewHTTPSink(w http.ResponseWriter) (*HTTPSink, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &HTTPSink{w: w, f: f}, nil
}

func (s *HTTPSink) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *HTTPSink) Flush()                      { s.f.Flush() }

// wireEvent is the NDJSON line shape, one JSON object per line; only the
// fields relevant to Type are populated.
type wireEvent struct {
	Type       string         `json:"type"`
	Content    string         `json:"content,omitempty"`
	Step       int            `json:"step,omitempty"`
	Total      int            `json:"total,omitempty"`
	Percentage float64        `json:"percentage,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Summary    string         `json:"summary,omitempty"`
	Action     string         `json:"action,omitempty"`
	Title      string         `json:"title,omitempty"`
	Result     string         `json:"result,omitempty"`
	Report     string         `json:"report,omitempty"`
	Error      string         `json:"error,omitempty"`
}

func translate(e mission.Event) wireEvent {
	return wireEvent{
		Type:       string(e.Kind),
		Content:    e.Content,
		Step:       e.Step,
		Total:      e.Total,
		Percentage: e.Percentage,
		Tool:       e.Tool,
		Args:       e.Args,
		Summary:    e.Summary,
		Action:     e.Action,
		Title:      e.Title,
		Result:     e.Result,
		Report:     e.Report,
		Error:      e.Err,
	}
}

// Publisher best-effort-publishes one event's encoded payload to a
// secondary sink (e.g. Kafka), independent of the primary Sink. A failure
// here must never affect the primary stream.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte)
}

// Streamer translates a mission.Hooks event trace into NDJSON lines written
// to a Sink, and enforces ordering as a belt-and-suspenders check over
// whatever the executor itself produces: no event is written once a
// terminal event (complete/error) has been sent, and progress steps are
// dropped if they ever regress.
type Streamer struct {
	sink      Sink
	cancelled func() bool

	mu        sync.Mutex
	terminal  bool
	lastStep  int
	writeErr  error

	publisher Publisher
	pubKey    string
}

// New builds a Streamer over sink. cancelled is polled by the executor at
// each state transition; pass nil if the run can't be cancelled
// externally.
func New(sink Sink, cancelled func() bool) *Streamer {
	return &Streamer{sink: sink, cancelled: cancelled}
}

// WithPublisher attaches a secondary event sink (mission.events), keyed by
// key (typically the conversation id), so other internal consumers can tail
// the same ordered trace this Streamer already produces. Returns s for
// chaining at construction time.
func (s *Streamer) WithPublisher(pub Publisher, key string) *Streamer {
	s.publisher = pub
	s.pubKey = key
	return s
}

// Hooks returns the mission.Hooks this Streamer drives. Pass the result
// straight into Executor.Run.
func (s *Streamer) Hooks() mission.Hooks {
	return mission.Hooks{OnEvent: s.onEvent, Cancelled: s.isCancelled}
}

// Err returns the first write error encountered, if any; a client that
// disconnects mid-stream surfaces here instead of panicking the mission.
func (s *Streamer) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

func (s *Streamer) isCancelled() bool {
	return s.cancelled != nil && s.cancelled()
}

func (s *Streamer) onEvent(e mission.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return
	}
	if e.Kind == mission.EventProgress {
		if e.Step < s.lastStep {
			return
		}
		s.lastStep = e.Step
	}

	line, err := json.Marshal(translate(e))
	if err != nil {
		s.writeErr = err
		return
	}
	if _, err := s.sink.Write(append(line, '\n')); err != nil {
		s.writeErr = err
		return
	}
	s.sink.Flush()

	if s.publisher != nil {
		go s.publisher.Publish(context.Background(), s.pubKey, line)
	}

	if e.Kind == mission.EventComplete || e.Kind == mission.EventError {
		s.terminal = true
	}
}
