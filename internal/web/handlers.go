package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lunarcal/internal/calendar"
	"lunarcal/internal/ics"
	"lunarcal/internal/lunar"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/model"
)

const maxImportBytes = 4 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type gridResponse struct {
	Year          int              `json:"year"`
	Month         int              `json:"month"`
	Cells         []model.GridCell `json:"cells"`
	TodayPosition *int             `json:"today_position,omitempty"`
}

// handleGrid renders a month without touching the view session.
//
// GET /api/grid?year=2024&month=2 (defaults to the current month)
// yearMonthQuery overlays ?year= and ?month= onto def. It reports whether
// either was given.
func yearMonthQuery(r *http.Request, def model.YearMonth) (model.YearMonth, bool, error) {
	ym, set := def, false
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return def, false, errors.New("year must be an integer")
		}
		ym.Year, set = y, true
	}
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return def, false, errors.New("month must be an integer")
		}
		ym.Month, set = time.Month(m), true
	}
	return ym, set, nil
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	ym, _, err := yearMonthQuery(r, model.YearMonthOf(s.now()))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cells, err := s.builder.Build(ym.Year, ym.Month)
	if err != nil {
		writeErr(w, "grid", err)
		return
	}
	resp := gridResponse{Year: ym.Year, Month: int(ym.Month), Cells: cells}
	if pos, ok := s.builder.TodayPosition(ym.Year, ym.Month); ok {
		resp.TodayPosition = &pos
	}
	writeJSON(w, http.StatusOK, resp)
}

type viewResponse struct {
	Year         int              `json:"year"`
	Month        int              `json:"month"`
	Cells        []model.GridCell `json:"cells"`
	Selected     *int             `json:"selected,omitempty"`
	SelectedDate string           `json:"selected_date,omitempty"`
	Events       []model.Event    `json:"events"`
}

// viewState snapshots the session; callers hold viewMu.
func (s *Server) viewState() viewResponse {
	cur := s.view.Current()
	resp := viewResponse{
		Year:   cur.Year,
		Month:  int(cur.Month),
		Cells:  s.view.Cells(),
		Events: s.view.Events(),
	}
	if pos, ok := s.view.Selected(); ok {
		resp.Selected = &pos
	}
	if d, ok := s.view.SelectedDate(); ok {
		resp.SelectedDate = d.Format(time.DateOnly)
	}
	return resp
}

// handleView returns the session view. With ?year= and/or ?month= it first
// jumps to that month, clearing the selection.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	ym, set, err := yearMonthQuery(r, s.view.Current())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if set {
		if err := s.view.Show(ym); err != nil {
			writeErr(w, "view", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.viewState())
}

func (s *Server) handleViewMonth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if err := s.view.SelectMonth(req.Delta); err != nil {
		writeErr(w, "view month", err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewState())
}

// handleViewSelect selects a cell. Padding cells are ignored: the response
// is the unchanged view with 200.
func (s *Server) handleViewSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position *int `json:"position"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Position == nil {
		writeError(w, http.StatusBadRequest, "position is required")
		return
	}

	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if _, err := s.view.SelectCell(r.Context(), *req.Position); err != nil {
		writeErr(w, "view select", err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewState())
}

func (s *Server) handleViewToday(w http.ResponseWriter, r *http.Request) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if err := s.view.Today(r.Context()); err != nil {
		writeErr(w, "view today", err)
		return
	}
	writeJSON(w, http.StatusOK, s.viewState())
}

// refreshView reloads the session's day list after a mutation.
func (s *Server) refreshView(ctx context.Context) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()
	if err := s.view.Refresh(ctx); err != nil {
		appLog.Warn("view refresh failed", "error", err.Error())
	}
}

func parseDate(v string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, v, time.Local)
}

func (s *Server) handleDayEvents(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	events, err := s.svc.Day(r.Context(), date)
	if err != nil {
		writeErr(w, "day events", err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type eventResponse struct {
	Event model.Event `json:"event"`
	// AlarmError is set when the event was saved but its reminder could
	// not be scheduled.
	AlarmError string `json:"alarm_error,omitempty"`
}

// mutationResult turns a Create/Update outcome into a response. An alarm
// failure after a successful write still reports the saved event.
func mutationResult(ev model.Event, err error) (eventResponse, error) {
	if err != nil && !(errors.Is(err, calendar.ErrAlarmSync) && ev.Persisted()) {
		return eventResponse{}, err
	}
	resp := eventResponse{Event: ev}
	if err != nil {
		resp.AlarmError = err.Error()
		appLog.Error("event saved without alarm", err, "event_id", ev.ID)
	}
	return resp, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	resp, err := mutationResult(s.svc.Create(r.Context(), ev))
	if err != nil {
		writeErr(w, "create event", err)
		return
	}
	s.refreshView(r.Context())
	writeJSON(w, http.StatusCreated, resp)
}

func eventID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	ev, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeErr(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var ev model.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	ev.ID = id

	resp, err := mutationResult(s.svc.Update(r.Context(), ev))
	if err != nil {
		writeErr(w, "update event", err)
		return
	}
	s.refreshView(r.Context())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	removed, err := s.svc.Delete(r.Context(), id)
	if err != nil && !removed {
		writeErr(w, "delete event", err)
		return
	}
	if err != nil {
		appLog.Error("event deleted but alarm not cancelled", err, "event_id", id)
	}
	if !removed {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %d not found", id))
		return
	}
	s.refreshView(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type lunarResponse struct {
	Date     string          `json:"date"`
	Lunar    model.LunarDate `json:"lunar"`
	Label    string          `json:"label"`
	Short    string          `json:"short"`
	Long     string          `json:"long"`
	Zodiac   string          `json:"zodiac"`
	FirstDay bool            `json:"is_first_day_of_month"`
}

func (s *Server) handleLunar(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	ld, err := lunar.FromTime(s.conv, date)
	if err != nil {
		writeErr(w, "lunar", err)
		return
	}

	resp := lunarResponse{
		Date:   date.Format(time.DateOnly),
		Lunar:  ld,
		Zodiac: lunar.Zodiac(ld.Year),
	}
	resp.FirstDay, err = lunar.IsFirstDayOfMonth(s.conv, date.Year(), int(date.Month()), date.Day())
	if err == nil {
		resp.Label, err = lunar.Label(ld)
	}
	if err == nil {
		if resp.Short, err = lunar.ShortString(ld); err == nil {
			resp.Long, err = lunar.LongString(ld)
		}
	}
	if err != nil {
		writeErr(w, "lunar", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inbox.List())
}

// exportWindow reads from/to (YYYY-MM-DD). The default is the twelve months
// starting with the current one; to is exclusive.
func (s *Server) exportWindow(r *http.Request) (time.Time, time.Time, error) {
	first := model.YearMonthOf(s.now()).Date(1)
	from, to := first, first.AddDate(1, 0, 0)

	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
		from = t
	}
	if v := q.Get("to"); v != "" {
		t, err := parseDate(v)
		if err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
		to = t
	}
	if !to.After(from) {
		return from, to, errors.New("to must be after from")
	}
	return from, to, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.exportWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := s.svc.Range(r.Context(), from, to)
	if err != nil {
		writeErr(w, "export", err)
		return
	}
	body, err := ics.Export(events, s.now())
	if err != nil {
		writeErr(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lunarcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

type importResponse struct {
	Imported    int      `json:"imported"`
	AlarmErrors []string `json:"alarm_errors,omitempty"`
}

// handleImport creates one event per VEVENT. With from/to given, recurring
// VEVENTs are flattened into that window; otherwise they are skipped.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "ics body too large")
		return
	}

	var im ics.Importer
	if r.URL.Query().Get("from") != "" || r.URL.Query().Get("to") != "" {
		if im.From, im.To, err = s.exportWindow(r); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	events, err := im.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp importResponse
	for _, ev := range events {
		saved, err := s.svc.Create(r.Context(), ev)
		if err != nil && !saved.Persisted() {
			writeErr(w, "import", err)
			return
		}
		if err != nil {
			resp.AlarmErrors = append(resp.AlarmErrors, err.Error())
		}
		resp.Imported++
	}
	s.refreshView(r.Context())
	writeJSON(w, http.StatusOK, resp)
}
