package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type enrollRequest struct {
	ContactID string `json:"contact_id" validate:"required,uuid"`
}

type advanceRequest struct {
	ToStageID     string `json:"to_stage_id" validate:"required,uuid"`
	TriggerSource string `json:"trigger_source"`
}

type dropRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) Enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cj, created, err := h.progressions.Enroll(r.Context(), orgID(r), chi.URLParam(r, "journeyID"), req.ContactID)
	if err != nil {
		serviceError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, cj)
}

func (h *Handlers) GetContactJourney(w http.ResponseWriter, r *http.Request) {
	cj, err := h.progressions.Get(r.Context(), orgID(r), chi.URLParam(r, "contactJourneyID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cj)
}

func (h *Handlers) AdvanceStage(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cj, err := h.progressions.AdvanceStage(r.Context(), orgID(r),
		chi.URLParam(r, "contactJourneyID"), req.ToStageID, req.TriggerSource)
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cj)
}

func (h *Handlers) PauseContactJourney(w http.ResponseWriter, r *http.Request) {
	if err := h.progressions.Pause(r.Context(), orgID(r), chi.URLParam(r, "contactJourneyID")); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handlers) ResumeContactJourney(w http.ResponseWriter, r *http.Request) {
	if err := h.progressions.Resume(r.Context(), orgID(r), chi.URLParam(r, "contactJourneyID")); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (h *Handlers) DropContactJourney(w http.ResponseWriter, r *http.Request) {
	var req dropRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.progressions.Drop(r.Context(), orgID(r), chi.URLParam(r, "contactJourneyID"), req.Reason); err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

func (h *Handlers) ListContactJourneys(w http.ResponseWriter, r *http.Request) {
	list, err := h.progressions.ListForContact(r.Context(), orgID(r), chi.URLParam(r, "contactID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contact_journeys": list})
}

func (h *Handlers) ListContactsInStage(w http.ResponseWriter, r *http.Request) {
	// Verify the stage belongs to the caller's journey before listing.
	if _, err := h.journeys.Get(r.Context(), orgID(r), chi.URLParam(r, "journeyID")); err != nil {
		serviceError(w, err)
		return
	}
	list, err := h.progressions.ListContactsInStage(r.Context(), chi.URLParam(r, "stageID"))
	if err != nil {
		serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contact_journeys": list})
}
