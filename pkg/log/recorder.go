package log

import "sync"

// Level is the severity of a recorded entry.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Entry is a log call captured by a Recorder.
type Entry struct {
	Level  Level
	Msg    string
	Fields []Field
}

// Field returns the value of the field named key.
func (e Entry) Field(key string) (interface{}, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Recorder is a Logger keeping every entry in memory, for tests that
// assert on what was logged.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level Level, msg string, fields []Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: append([]Field(nil), fields...)})
}

// Debug records a debug entry.
func (r *Recorder) Debug(msg string, fields ...Field) { r.record(LevelDebug, msg, fields) }

// Info records an info entry.
func (r *Recorder) Info(msg string, fields ...Field) { r.record(LevelInfo, msg, fields) }

// Warn records a warning entry.
func (r *Recorder) Warn(msg string, fields ...Field) { r.record(LevelWarn, msg, fields) }

// Error records an error entry.
func (r *Recorder) Error(msg string, fields ...Field) { r.record(LevelError, msg, fields) }

// Critical records a critical entry.
func (r *Recorder) Critical(msg string, fields ...Field) { r.record(LevelCritical, msg, fields) }

// Entries returns a copy of the recorded entries in call order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Count returns the number of entries at level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Find returns the first entry at level with message msg.
func (r *Recorder) Find(level Level, msg string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Level == level && e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

var (
	_ Logger = (*Recorder)(nil)
	_ Logger = (*NoopLogger)(nil)
	_ Logger = (*ZerologAdapter)(nil)
)
