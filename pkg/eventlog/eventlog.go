// Package eventlog records session events as JSON lines for later analysis.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stagelab/stagechat/pkg/types"
)

// Event is one logged session event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Data      any       `json:"data"`
}

// Logger is the sink the session core writes to. Implementations must
// never propagate failures into the caller; the core treats logging as
// fire-and-forget.
type Logger interface {
	LogEvent(eventType string, data any)
	LogMessage(m *types.Message)
	LogLLMCall(agentName, prompt, response, errMsg string)
	LogError(kind, detail string)
	Close() error
}

// llmCallRecord mirrors the shape of a logged gateway call.
type llmCallRecord struct {
	AgentName string `json:"agent_name"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response"`
	Error     string `json:"error,omitempty"`
}

// JSONLLogger writes each event as one JSON line to a per-session file.
type JSONLLogger struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLLogger creates the session log file under dir.
func NewJSONLLogger(dir, sessionID string) (*JSONLLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLLogger{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// LogEvent writes a single event as JSONL. Write failures are swallowed
// after being reported on stderr; the simulation must not stop for them.
func (l *JSONLLogger) LogEvent(eventType string, data any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ev := Event{Timestamp: time.Now(), EventType: eventType, Data: data}
	line, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eventlog: marshal %s: %v\n", eventType, err)
		return
	}
	if _, err := l.writer.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "eventlog: write %s: %v\n", eventType, err)
		return
	}
	_ = l.writer.Flush()
}

// LogMessage logs a user or agent message.
func (l *JSONLLogger) LogMessage(m *types.Message) {
	l.LogEvent("message", m)
}

// LogLLMCall logs one gateway call with its prompt and outcome.
func (l *JSONLLogger) LogLLMCall(agentName, prompt, response, errMsg string) {
	l.LogEvent("llm_call", llmCallRecord{
		AgentName: agentName,
		Prompt:    prompt,
		Response:  response,
		Error:     errMsg,
	})
}

// LogError logs a recoverable error.
func (l *JSONLLogger) LogError(kind, detail string) {
	l.LogEvent("error", map[string]string{
		"error_type":    kind,
		"error_message": detail,
	})
}

// Close flushes and closes the log file.
func (l *JSONLLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		_ = l.writer.Flush()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// MemoryLogger keeps events in memory; used by tests and as a no-op sink.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryLogger creates an empty in-memory logger.
func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{}
}

// LogEvent appends the event.
func (l *MemoryLogger) LogEvent(eventType string, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, Event{Timestamp: time.Now(), EventType: eventType, Data: data})
}

// LogMessage appends a message event.
func (l *MemoryLogger) LogMessage(m *types.Message) {
	l.LogEvent("message", m)
}

// LogLLMCall appends an llm_call event.
func (l *MemoryLogger) LogLLMCall(agentName, prompt, response, errMsg string) {
	l.LogEvent("llm_call", llmCallRecord{AgentName: agentName, Prompt: prompt, Response: response, Error: errMsg})
}

// LogError appends an error event.
func (l *MemoryLogger) LogError(kind, detail string) {
	l.LogEvent("error", map[string]string{"error_type": kind, "error_message": detail})
}

// Close is a no-op.
func (l *MemoryLogger) Close() error { return nil }

// Events returns a copy of the recorded events.
func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsOfType returns recorded events matching eventType.
func (l *MemoryLogger) EventsOfType(eventType string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
