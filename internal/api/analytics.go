package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handlers) RecomputeAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, err := h.analytics.CalculateJourneyAnalytics(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.analytics.LatestSnapshot(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) Bottlenecks(w http.ResponseWriter, r *http.Request) {
	list, err := h.analytics.IdentifyBottlenecks(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bottlenecks": list})
}

func (h *Handlers) FlowDistribution(w http.ResponseWriter, r *http.Request) {
	flow, err := h.analytics.FlowDistribution(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flow": flow})
}

func (h *Handlers) CompletionTimes(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.analytics.CompletionTimeDistribution(r.Context(), orgID(r), chi.URLParam(r, "journeyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"buckets": buckets})
}
