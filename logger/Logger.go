// Package logger implements the structured training recorder. Metrics
// accumulate under stable keys and are flushed as one event per dump.
package logger

import (
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder accumulates key-value training metrics between dumps. Dump
// emits everything recorded since the previous dump as a single
// structured event tagged with the run ID, then clears the
// accumulated values. A later Record under the same key overwrites the
// earlier value within a dump window.
type Recorder struct {
	log    zerolog.Logger
	values map[string]interface{}
}

// NewRecorder returns a Recorder writing structured events to w under
// a fresh run ID
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		log: zerolog.New(w).With().
			Timestamp().
			Str("run", uuid.NewString()).
			Logger(),
		values: make(map[string]interface{}),
	}
}

// Record stores a metric value under key until the next Dump
func (r *Recorder) Record(key string, value interface{}) {
	r.values[key] = value
}

// Dump flushes all recorded metrics as one event at the argument
// environment step, then clears the recorder
func (r *Recorder) Dump(step int) {
	keys := make([]string, 0, len(r.values))
	for k := range r.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	event := r.log.Info().Int("step", step)
	for _, k := range keys {
		event = event.Interface(k, r.values[k])
	}
	event.Msg("train")

	r.values = make(map[string]interface{})
}
