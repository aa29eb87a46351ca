package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lunarcal/internal/calview"
	"lunarcal/internal/ics"
	appLog "lunarcal/internal/log"
	"lunarcal/internal/lunar"
	"lunarcal/internal/model"
)

// handleListEvents returns every event, or those of one day with ?date=.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var (
		events []model.Event
		err    error
	)
	if q := r.URL.Query().Get("date"); q != "" {
		date, perr := model.ParseDate(q, s.svc.Location())
		if perr != nil {
			writeServiceError(w, badRequest("invalid date %q", q))
			return
		}
		events, err = s.svc.ByDate(r.Context(), date)
	} else {
		events, err = s.svc.All(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.decodeEvent(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stored, err := s.svc.Add(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusCreated, toEventDTO(stored))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ev, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ev, err := s.decodeEvent(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ev.ID = id
	stored, err := s.svc.Update(r.Context(), ev)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusOK, toEventDTO(stored))
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	s.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ev, err := s.svc.ToggleFinished(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.Invalidate()
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

func (s *Server) decodeEvent(r *http.Request) (model.Event, error) {
	var in eventInput
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return model.Event{}, badRequest("invalid JSON: %v", err)
	}
	return in.toEvent(s.svc.Location())
}

func (s *Server) pathDate(r *http.Request) (time.Time, error) {
	raw := mux.Vars(r)["date"]
	date, err := model.ParseDate(raw, s.svc.Location())
	if err != nil {
		return time.Time{}, badRequest("invalid date %q", raw)
	}
	return date, nil
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	date, err := s.pathDate(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := s.svc.Day(r.Context(), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayResponse(a))
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	date, err := s.pathDate(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := s.svc.Week(r.Context(), date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRangeResponse(a))
}

// handleMonth serves the month grid, from cache when possible.
//
// Behavior:
//   - The cache is keyed by "YYYY-MM" plus today's date, so the Today flag
//     never goes stale across midnight.
//   - Every write through this server purges the cache; writes made by other
//     processes are picked up through Invalidate or after the TTL.
func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	year, _ := strconv.Atoi(vars["year"])
	month, _ := strconv.Atoi(vars["month"])

	key := fmt.Sprintf("%04d-%02d@%s", year, month, calview.Key(s.svc.Today()))
	if resp, ok := s.months.Get(key); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	a, err := s.svc.Month(r.Context(), year, time.Month(month))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := toRangeResponse(a)
	s.months.Add(key, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLunar(w http.ResponseWriter, r *http.Request) {
	date, err := s.pathDate(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ld, err := lunar.FromTime(date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	day := calview.Decorate([]time.Time{date}, 0, nil, s.svc.Today())[0]
	writeJSON(w, http.StatusOK, lunarResponse{
		Date:     calview.Key(date),
		Lunar:    ld,
		Label:    ld.Label(),
		YearName: ld.YearName(),
		Zodiac:   day.Zodiac,
		Weekday:  day.Weekday,
	})
}

func (s *Server) handleLunarYear(w http.ResponseWriter, r *http.Request) {
	year, _ := strconv.Atoi(mux.Vars(r)["year"])
	y, err := lunar.YearOf(year)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	first, err := lunar.NewYear(year, s.svc.Location())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lunarYearResponse{
		Year:     y,
		NewYear:  calview.Key(first),
		YearName: lunar.Date{Year: year, Month: 1, Day: 1}.YearName(),
	})
}

// handleSolar converts a lunar date back; ?leap=true selects the leap month.
func (s *Server) handleSolar(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ld := lunar.Date{}
	ld.Year, _ = strconv.Atoi(vars["year"])
	ld.Month, _ = strconv.Atoi(vars["month"])
	ld.Day, _ = strconv.Atoi(vars["day"])
	if q := r.URL.Query().Get("leap"); q != "" {
		leap, err := strconv.ParseBool(q)
		if err != nil {
			writeServiceError(w, badRequest("invalid leap flag %q", q))
			return
		}
		ld.Leap = leap
	}

	t, err := lunar.ToSolar(ld, s.svc.Location())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, solarResponse{
		Lunar: ld,
		Label: ld.Label(),
		Date:  calview.Key(t),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	events, err := s.svc.All(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := ics.Export(&buf, events, time.Now()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="lunarcal.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleImport adds the events of an iCalendar payload.
//
// Behavior:
//   - With ?url=, the calendar is downloaded (http, https or webcal);
//     otherwise the request body is the calendar.
//   - Each parsed event is added like a POST /api/events; events that fail
//     validation are counted in "failed" and the rest are still imported.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if src := r.URL.Query().Get("url"); src != "" {
		if s.fetcher == nil {
			writeServiceError(w, badRequest("remote import is disabled"))
			return
		}
		data, err := s.fetcher.Fetch(r.Context(), src)
		if err != nil {
			appLog.Warn("ics import fetch failed", "err", err)
			writeError(w, http.StatusBadGateway, "fetch calendar: "+err.Error())
			return
		}
		body = data
	} else {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, ics.ErrTooLarge.Error())
				return
			}
			writeServiceError(w, badRequest("read body: %v", err))
			return
		}
		body = data
	}

	res, err := ics.ParseICS(body, s.svc.Location())
	if err != nil {
		writeServiceError(w, badRequest("%v", err))
		return
	}

	resp := importResponse{
		Skipped:   res.Skipped,
		Recurring: res.Recurring,
		Events:    make([]eventDTO, 0, len(res.Events)),
	}
	for _, ev := range res.Events {
		stored, err := s.svc.Add(r.Context(), ev)
		if err != nil {
			appLog.Warn("ics import: event rejected", "title", ev.Title, "err", err)
			resp.Failed++
			continue
		}
		resp.Imported++
		resp.Events = append(resp.Events, toEventDTO(stored))
	}
	if resp.Imported > 0 {
		s.Invalidate()
	}
	appLog.Info("ics import done",
		"imported", resp.Imported, "skipped", resp.Skipped,
		"recurring", resp.Recurring, "failed", resp.Failed)
	writeJSON(w, http.StatusOK, resp)
}
