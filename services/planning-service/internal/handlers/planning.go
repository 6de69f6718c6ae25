package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/libs/httpx"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/availability"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

// TrainerLister reads the roster shown on the board.
type TrainerLister interface {
	ListTrainers(ctx context.Context) ([]model.Person, error)
}

type PlanningHandler struct {
	engine   *availability.Engine
	trainers TrainerLister
	slots    []model.Slot
	logger   *slog.Logger
	now      func() time.Time
}

func NewPlanningHandler(engine *availability.Engine, trainers TrainerLister, slots []model.Slot, logger *slog.Logger) *PlanningHandler {
	return &PlanningHandler{
		engine:   engine,
		trainers: trainers,
		slots:    slots,
		logger:   logger,
		now:      time.Now,
	}
}

type availabilityQuery struct {
	PersonID string `json:"person_id" validate:"required,max=64"`
	Date     string `json:"date" validate:"required,max=32"`
	Weekday  string `json:"weekday" validate:"omitempty,max=16"`
	Slot     string `json:"slot" validate:"required,max=32"`
}

type decisionBody struct {
	Status      model.Status `json:"status"`
	Source      model.Source `json:"source"`
	Declared    model.Status `json:"declared,omitempty"`
	RecordID    string       `json:"record_id,omitempty"`
	OverrideIDs []string     `json:"override_ids,omitempty"`
}

func toDecisionBody(d availability.Decision) decisionBody {
	return decisionBody{
		Status:      d.Status,
		Source:      d.Source,
		Declared:    d.Declared,
		RecordID:    d.RecordID,
		OverrideIDs: d.OverrideIDs,
	}
}

type availabilityResponse struct {
	PersonID string        `json:"person_id"`
	Date     string        `json:"date"`
	Weekday  model.Weekday `json:"weekday,omitempty"`
	Slot     string        `json:"slot"`
	decisionBody
	Degraded bool `json:"degraded"`
}

// Availability answers GET /api/v1/availability. A store failure is not an
// error for the caller: the answer is unknown and flagged degraded.
func (h *PlanningHandler) Availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := availabilityQuery{
		PersonID: strings.TrimSpace(q.Get("person_id")),
		Date:     strings.TrimSpace(q.Get("date")),
		Weekday:  strings.TrimSpace(q.Get("weekday")),
		Slot:     strings.TrimSpace(q.Get("slot")),
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	decision, err := h.engine.Resolve(r.Context(), availability.Query{
		PersonID: req.PersonID,
		Date:     req.Date,
		Weekday:  model.Weekday(req.Weekday),
		Slot:     model.Slot(req.Slot),
	})
	degraded := false
	switch {
	case err == nil:
	case errors.Is(err, availability.ErrInvalidQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, availability.ErrStoreUnavailable):
		h.logger.Error("availability resolved as unknown", "person_id", req.PersonID, "err", err)
		degraded = true
	default:
		h.logger.Error("availability resolution failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	resp := availabilityResponse{
		PersonID:     req.PersonID,
		Date:         req.Date,
		Slot:         req.Slot,
		decisionBody: toDecisionBody(decision),
		Degraded:     degraded,
	}
	cal := h.engine.Calendar()
	if date, err := cal.Normalize(req.Date); err == nil {
		resp.Date = date
		if wd, ok, _ := cal.Weekday(date); ok {
			resp.Weekday = wd
		}
	}
	if slot, err := model.ParseSlot(req.Slot); err == nil {
		resp.Slot = string(slot)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type weekQuery struct {
	PersonID string `json:"person_id" validate:"required,max=64"`
	Date     string `json:"date" validate:"omitempty,max=32"`
}

type cellBody struct {
	Date    string        `json:"date"`
	Weekday model.Weekday `json:"weekday"`
	Slot    model.Slot    `json:"slot"`
	decisionBody
}

type weekResponse struct {
	PersonID string       `json:"person_id"`
	Dates    []string     `json:"dates"`
	Slots    []model.Slot `json:"slots"`
	Cells    []cellBody   `json:"cells"`
	Degraded bool         `json:"degraded"`
}

func toWeekResponse(week availability.Week) weekResponse {
	resp := weekResponse{
		PersonID: week.PersonID,
		Dates:    week.Dates,
		Slots:    week.Slots,
		Cells:    make([]cellBody, 0, len(week.Cells)),
		Degraded: week.Degraded,
	}
	for _, c := range week.Cells {
		resp.Cells = append(resp.Cells, cellBody{
			Date:         c.Date,
			Weekday:      c.Weekday,
			Slot:         c.Slot,
			decisionBody: toDecisionBody(c.Decision),
		})
	}
	return resp
}

// Week answers GET /api/v1/availability/week; date defaults to today.
func (h *PlanningHandler) Week(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := weekQuery{
		PersonID: strings.TrimSpace(q.Get("person_id")),
		Date:     strings.TrimSpace(q.Get("date")),
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = h.engine.Calendar().Today(h.now())
	}

	week, err := h.engine.ResolveWeek(r.Context(), req.PersonID, req.Date, h.slots)
	switch {
	case err == nil:
	case errors.Is(err, availability.ErrInvalidQuery):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case week.Degraded:
		h.logger.Error("week resolved as unknown", "person_id", req.PersonID, "err", err)
	default:
		h.logger.Error("week resolution failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toWeekResponse(week))
}

type weekWindowResponse struct {
	Date string   `json:"date"`
	Week []string `json:"week"`
}

// WeekWindow answers GET /api/v1/planning/week-window.
func (h *PlanningHandler) WeekWindow(w http.ResponseWriter, r *http.Request) {
	cal := h.engine.Calendar()
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = cal.Today(h.now())
	}
	normalized, err := cal.Normalize(date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	week, err := cal.WeekWindowOf(normalized)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, weekWindowResponse{Date: normalized, Week: week})
}

type boardResponse struct {
	Dates    []string       `json:"dates"`
	Slots    []model.Slot   `json:"slots"`
	Rows     []weekResponse `json:"rows"`
	Degraded bool           `json:"degraded"`
}

// Board answers GET /api/v1/planning/board with every active trainer's week.
func (h *PlanningHandler) Board(w http.ResponseWriter, r *http.Request) {
	cal := h.engine.Calendar()
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = cal.Today(h.now())
	}
	dates, err := cal.WeekWindowOf(date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	people, err := h.trainers.ListTrainers(r.Context())
	if err != nil {
		h.logger.Error("trainer roster unavailable", "err", err)
		httpx.WriteJSON(w, http.StatusOK, boardResponse{Dates: dates, Slots: h.slots, Rows: []weekResponse{}, Degraded: true})
		return
	}

	board, err := h.engine.BuildBoard(r.Context(), people, date, h.slots)
	if errors.Is(err, availability.ErrInvalidQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("board failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	resp := boardResponse{Dates: board.Dates, Slots: board.Slots, Rows: make([]weekResponse, 0, len(board.Rows)), Degraded: board.Degraded}
	for _, row := range board.Rows {
		resp.Rows = append(resp.Rows, toWeekResponse(row))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
