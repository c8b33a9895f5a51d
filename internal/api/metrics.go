package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/marketsage/journey-engine/internal/domain"
	"github.com/marketsage/journey-engine/internal/service/metrics"
)

type defineMetricRequest struct {
	Name         string               `json:"name" validate:"required"`
	Type         string               `json:"metric_type" validate:"required"`
	TargetValue  *float64             `json:"target_value"`
	Aggregation  string               `json:"aggregation_type"`
	Formula      string               `json:"formula"`
	IsSuccess    bool                 `json:"is_success"`
	StageTargets []stageTargetRequest `json:"stage_targets" validate:"dive"`
}

type stageTargetRequest struct {
	StageID     string  `json:"stage_id" validate:"required,uuid"`
	TargetValue float64 `json:"target_value"`
}

type updateMetricRequest struct {
	Name        *string  `json:"name" validate:"omitempty,min=1"`
	TargetValue *float64 `json:"target_value"`
	ClearTarget bool     `json:"clear_target"`
	Aggregation *string  `json:"aggregation_type"`
	Formula     *string  `json:"formula"`
	IsSuccess   *bool    `json:"is_success"`
}

type stageMetricValueRequest struct {
	ActualValue float64 `json:"actual_value"`
}

func (h *Handlers) DefineMetric(w http.ResponseWriter, r *http.Request) {
	var req defineMetricRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input := metrics.DefineInput{
		Name:        req.Name,
		Type:        domain.MetricType(req.Type),
		TargetValue: req.TargetValue,
		Aggregation: domain.AggregationType(req.Aggregation),
		Formula:     req.Formula,
		IsSuccess:   req.IsSuccess,
	}
	for _, st := range req.StageTargets {
		input.StageTargets = append(input.StageTargets, metrics.StageTargetInput(st))
	}

	m, err := h.metrics.Define(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), input)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handlers) ListMetrics(w http.ResponseWriter, r *http.Request) {
	list, err := h.metrics.List(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": list})
}

func (h *Handlers) GetMetric(w http.ResponseWriter, r *http.Request) {
	m, err := h.metrics.Get(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "metricID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) UpdateMetric(w http.ResponseWriter, r *http.Request) {
	var req updateMetricRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u := metrics.UpdateFields{
		Name:      req.Name,
		Formula:   req.Formula,
		IsSuccess: req.IsSuccess,
	}
	if req.TargetValue != nil || req.ClearTarget {
		u.SetTargetValue = true
		u.TargetValue = req.TargetValue
	}
	if req.Aggregation != nil {
		agg := domain.AggregationType(*req.Aggregation)
		u.Aggregation = &agg
	}

	err := h.metrics.Update(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "metricID"), u)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handlers) DeleteMetric(w http.ResponseWriter, r *http.Request) {
	err := h.metrics.Delete(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), chi.URLParam(r, "metricID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) RecalculateMetrics(w http.ResponseWriter, r *http.Request) {
	list, err := h.metrics.Recalculate(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"metrics": list})
}

func (h *Handlers) SetStageMetricValue(w http.ResponseWriter, r *http.Request) {
	var req stageMetricValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	err := h.metrics.UpdateStageMetricValue(r.Context(), orgID(r),
		chi.URLParam(r, "journeyID"), chi.URLParam(r, "metricID"),
		chi.URLParam(r, "stageID"), req.ActualValue)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
