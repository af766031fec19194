package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/eugener/boatload"
	relay "github.com/eugener/boatload/internal"
)

const maxListLimit = 1000

type ingestResponse struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	IDs        []string `json:"ids"`
}

// handleIngest accepts a single event object or an array of them. Each event
// needs a string "type"; "id" and "source" are optional and a UUIDv7 is
// assigned when "id" is absent. The whole request is validated before any
// event is enqueued.
func (s *server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.deps.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge,
				errorResponse(http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		writeError(w, fmt.Errorf("%w: read body: %w", relay.ErrBadRequest, err))
		return
	}

	client := relay.ClientFromContext(r.Context())
	events, err := parseEvents(body, client, time.Now().UTC())
	if err != nil {
		s.reject("invalid", len(events))
		writeError(w, err)
		return
	}

	fresh := events[:0]
	dups := 0
	for _, e := range events {
		if s.deps.Dedupe != nil && !s.deps.Dedupe.FirstSeen(r.Context(), e.ID) {
			dups++
			continue
		}
		fresh = append(fresh, e)
	}

	resp := ingestResponse{Duplicates: dups, IDs: make([]string, 0, len(fresh))}
	for i, e := range fresh {
		if err := s.deps.Processor.Push(e); err != nil {
			// Let the caller retry whatever did not make it in.
			if s.deps.Dedupe != nil {
				for _, rest := range fresh[i:] {
					s.deps.Dedupe.Forget(r.Context(), rest.ID)
				}
			}
			s.accept(client, resp.Accepted)
			s.reject(rejectReason(err), len(fresh)-i)
			w.Header().Set("Retry-After", "1")
			w.Header().Set("X-Boatload-Accepted", strconv.Itoa(resp.Accepted))
			writeError(w, err)
			return
		}
		resp.Accepted++
		resp.IDs = append(resp.IDs, e.ID)
	}

	s.accept(client, resp.Accepted)
	if s.deps.Metrics != nil && dups > 0 {
		s.deps.Metrics.EventsDuplicate.Add(float64(dups))
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// parseEvents splits body into events without unmarshaling payloads.
func parseEvents(body []byte, client *relay.Client, now time.Time) ([]relay.Event, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", relay.ErrBadRequest)
	}
	root := gjson.ParseBytes(body)
	var items []gjson.Result
	switch {
	case root.IsArray():
		items = root.Array()
	case root.IsObject():
		items = []gjson.Result{root}
	default:
		return nil, fmt.Errorf("%w: expected an event object or an array of events", relay.ErrBadRequest)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no events", relay.ErrBadRequest)
	}

	clientName := ""
	if client != nil {
		clientName = client.Name
	}
	events := make([]relay.Event, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: event %d is not an object", relay.ErrBadRequest, i)
		}
		typ := item.Get("type")
		if typ.Type != gjson.String || typ.Str == "" {
			return nil, fmt.Errorf("%w: event %d: \"type\" must be a non-empty string", relay.ErrBadRequest, i)
		}
		id := item.Get("id")
		var eventID string
		switch {
		case !id.Exists():
			eventID = uuid.Must(uuid.NewV7()).String()
		case id.Type == gjson.String && id.Str != "":
			eventID = id.Str
		default:
			return nil, fmt.Errorf("%w: event %d: \"id\" must be a non-empty string", relay.ErrBadRequest, i)
		}
		events = append(events, relay.Event{
			ID:         eventID,
			Type:       typ.Str,
			Source:     item.Get("source").String(),
			Client:     clientName,
			Payload:    json.RawMessage(item.Raw),
			ReceivedAt: now,
		})
	}
	return events, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, boatload.ErrQueueOverflow):
		return "overflow"
	case errors.Is(err, boatload.ErrClosed):
		return "closed"
	default:
		return "error"
	}
}

func (s *server) accept(client *relay.Client, n int) {
	if s.deps.Metrics == nil || n == 0 {
		return
	}
	name := anonymous.Name
	if client != nil {
		name = client.Name
	}
	s.deps.Metrics.EventsAccepted.WithLabelValues(name).Add(float64(n))
}

func (s *server) reject(reason string, n int) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.EventsRejected.WithLabelValues(reason).Add(float64(max(n, 1)))
	}
}

type listResponse struct {
	Events []relay.Event `json:"events"`
	Total  int           `json:"total"`
}

// handleListEvents pages through stored events, newest first.
func (s *server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := relay.EventFilter{Type: q.Get("type"), Source: q.Get("source")}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, fmt.Errorf("%w: since: %w", relay.ErrBadRequest, err))
			return
		}
		f.Since = t
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), 50); err != nil {
		writeError(w, fmt.Errorf("%w: limit: %w", relay.ErrBadRequest, err))
		return
	}
	if f.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		writeError(w, fmt.Errorf("%w: offset: %w", relay.ErrBadRequest, err))
		return
	}
	f.Limit = min(f.Limit, maxListLimit)

	events, err := s.deps.Store.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, fmt.Errorf("%w: list events: %w", relay.ErrUnavailable, err))
		return
	}
	total, err := s.deps.Store.CountEvents(r.Context(), relay.EventFilter{Type: f.Type, Source: f.Source, Since: f.Since})
	if err != nil {
		writeError(w, fmt.Errorf("%w: count events: %w", relay.ErrUnavailable, err))
		return
	}
	if events == nil {
		events = []relay.Event{}
	}
	writeJSON(w, http.StatusOK, listResponse{Events: events, Total: total})
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
