package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/journey"
)

type createJourneyRequest struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description"`
	CreatedByID string         `json:"created_by_id"`
	Stages      []stageRequest `json:"stages" validate:"dive"`
}

type stageRequest struct {
	Name                  string   `json:"name" validate:"required"`
	Description           string   `json:"description"`
	Order                 int      `json:"order"`
	ExpectedDurationHours *float64 `json:"expected_duration_hours" validate:"omitempty,gt=0"`
	ConversionGoal        *float64 `json:"conversion_goal" validate:"omitempty,gt=0,lte=1"`
	IsEntryPoint          bool     `json:"is_entry_point"`
	IsExitPoint           bool     `json:"is_exit_point"`
}

type updateJourneyRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Description *string `json:"description"`
}

type transitionRequest struct {
	FromStageID    string          `json:"from_stage_id" validate:"required,uuid"`
	ToStageID      string          `json:"to_stage_id" validate:"required,uuid"`
	TriggerType    string          `json:"trigger_type" validate:"required"`
	TriggerDetails json.RawMessage `json:"trigger_details"`
	Conditions     json.RawMessage `json:"conditions"`
}

func (h *Handlers) ListJourneys(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	f := journey.ListFilter{
		ActiveOnly: q.Get("active") == "true",
		Search:     q.Get("search"),
		Limit:      limit,
		Offset:     offset,
	}

	list, total, err := h.journeys.List(r.Context(), orgID(r), f)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"journeys": list,
		"total":    total,
	})
}

func (h *Handlers) CreateJourney(w http.ResponseWriter, r *http.Request) {
	var req createJourneyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := journey.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		CreatedByID: req.CreatedByID,
	}
	for _, s := range req.Stages {
		input.Stages = append(input.Stages, journey.StageInput(s))
	}

	j, err := h.journeys.Create(r.Context(), orgID(r), input)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handlers) GetJourney(w http.ResponseWriter, r *http.Request) {
	j, err := h.journeys.Get(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handlers) UpdateJourney(w http.ResponseWriter, r *http.Request) {
	var req updateJourneyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := h.journeys.Update(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), journey.UpdateFields{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) DeleteJourney(w http.ResponseWriter, r *http.Request) {
	if err := h.journeys.Delete(r.Context(), orgID(r), chi.URLParam(r, "journeyID")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ActivateJourney(w http.ResponseWriter, r *http.Request) {
	if err := h.journeys.Activate(r.Context(), orgID(r), chi.URLParam(r, "journeyID")); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handlers) DeactivateJourney(w http.ResponseWriter, r *http.Request) {
	if err := h.journeys.Deactivate(r.Context(), orgID(r), chi.URLParam(r, "journeyID")); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "inactive"})
}

func (h *Handlers) AddStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := h.journeys.AddStage(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), journey.StageInput(req))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *Handlers) UpdateStage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                  *string  `json:"name" validate:"omitempty,min=1"`
		Description           *string  `json:"description"`
		Order                 *int     `json:"order"`
		ExpectedDurationHours *float64 `json:"expected_duration_hours" validate:"omitempty,gt=0"`
		ConversionGoal        *float64 `json:"conversion_goal" validate:"omitempty,gt=0,lte=1"`
		IsEntryPoint          *bool    `json:"is_entry_point"`
		IsExitPoint           *bool    `json:"is_exit_point"`

		ClearExpectedDuration bool `json:"clear_expected_duration"`
		ClearConversionGoal   bool `json:"clear_conversion_goal"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u := journey.StageUpdateFields{
		Name:         req.Name,
		Description:  req.Description,
		Order:        req.Order,
		IsEntryPoint: req.IsEntryPoint,
		IsExitPoint:  req.IsExitPoint,
	}
	if req.ExpectedDurationHours != nil || req.ClearExpectedDuration {
		u.SetExpectedDuration = true
		u.ExpectedDurationHours = req.ExpectedDurationHours
	}
	if req.ConversionGoal != nil || req.ClearConversionGoal {
		u.SetConversionGoal = true
		u.ConversionGoal = req.ConversionGoal
	}

	err := h.journeys.UpdateStage(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "stageID"), u)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) DeleteStage(w http.ResponseWriter, r *http.Request) {
	err := h.journeys.DeleteStage(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "stageID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AddTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t, err := h.journeys.AddTransition(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), journey.TransitionInput{
		FromStageID:    req.FromStageID,
		ToStageID:      req.ToStageID,
		TriggerType:    domain.TriggerType(req.TriggerType),
		TriggerDetails: req.TriggerDetails,
		Conditions:     req.Conditions,
	})
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handlers) UpdateTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TriggerType    *string         `json:"trigger_type"`
		TriggerDetails json.RawMessage `json:"trigger_details"`
		Conditions     json.RawMessage `json:"conditions"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	u := journey.TransitionUpdateFields{
		TriggerDetails: req.TriggerDetails,
		Conditions:     req.Conditions,
	}
	if req.TriggerType != nil {
		tt := domain.TriggerType(*req.TriggerType)
		u.TriggerType = &tt
	}
	err := h.journeys.UpdateTransition(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "transitionID"), u)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) DeleteTransition(w http.ResponseWriter, r *http.Request) {
	err := h.journeys.DeleteTransition(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "transitionID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
