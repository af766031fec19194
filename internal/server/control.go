package server

import (
	"fmt"
	"net/http"
	"time"

	relay "github.com/eugener/boatload/internal"
)

// handleFlush asks the processor to flush its backlog. The flush itself runs
// asynchronously on the batch worker.
func (s *server) handleFlush(w http.ResponseWriter, _ *http.Request) {
	if err := s.deps.Processor.Process(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "flush requested"})
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	workerUp, timerUp := s.deps.Processor.Running()
	st := relay.Stats{
		QueueLength:   s.deps.Processor.QueueLen(),
		WorkerRunning: workerUp,
		TimerRunning:  timerUp,
		UptimeSeconds: int64(time.Since(s.deps.StartedAt).Seconds()),
	}
	if s.deps.Store != nil {
		n, err := s.deps.Store.CountEvents(r.Context(), relay.EventFilter{})
		if err != nil {
			writeError(w, fmt.Errorf("%w: count events: %w", relay.ErrUnavailable, err))
			return
		}
		st.StoredEvents = n
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, fmt.Errorf("%w: %s %s", relay.ErrNotFound, r.Method, r.URL.Path))
}
