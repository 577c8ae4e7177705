package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/kineticpt/booking-core/internal/payment"
	"github.com/kineticpt/booking-core/internal/profile"
	"github.com/kineticpt/booking-core/internal/slot"
)

var validate = validator.New()

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

func createSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", validationDetails(err))
			return
		}

		therapistID, _ := uuid.Parse(req.TherapistID)
		date, _ := time.Parse("2006-01-02", req.VisitDate)

		created, err := svc.CreateSlot(r.Context(), therapistID, date, req.StartTime, req.EndTime, slot.ServiceType(req.ServiceType))
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(created))
	}
}

func listSlotsHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, err := uuid.Parse(r.URL.Query().Get("therapist_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}
		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.ListByTherapist(r.Context(), therapistID, date)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func listAvailableSlotsHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		serviceType := slot.ServiceType(r.URL.Query().Get("service_type"))

		slots, err := svc.ListAvailable(r.Context(), date, serviceType)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func updateSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req UpdateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", validationDetails(err))
			return
		}

		updated, err := svc.UpdateSlot(r.Context(), id, req.StartTime, req.EndTime, slot.ServiceType(req.ServiceType))
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

func deleteSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteSlot(r.Context(), id); err != nil {
			handleSlotError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func reserveSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", validationDetails(err))
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)

		reserved, err := svc.Reserve(r.Context(), id, patientID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(reserved))
	}
}

func cancelSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		updated, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

func noShowSlotHandler(svc *slot.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		updated, err := svc.MarkNoShow(r.Context(), id)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(updated))
	}
}

// patientBookingsHandler is the dashboard poll: the patient's pending and
// booked slots, each annotated with its latest payment.
func patientBookingsHandler(slots *slot.Service, payments *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		list, err := slots.ListByPatient(r.Context(), patientID)
		if err != nil {
			handleSlotError(w, err)
			return
		}

		resp := make([]BookingResponse, 0, len(list))
		for i := range list {
			row := BookingResponse{Slot: toSlotResponse(&list[i])}

			p, err := payments.LatestForBooking(r.Context(), list[i].ID)
			if err == nil && p != nil {
				pr := toPaymentResponse(p)
				row.Payment = &pr
			}

			resp = append(resp, row)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func sweepHandler(svc *slot.Service, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reclaimed, err := svc.Sweep(r.Context(), timeout)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, SweepResponse{Reclaimed: reclaimed})
	}
}

func handleSlotError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrMissingField),
		errors.Is(err, slot.ErrInvalidClock),
		errors.Is(err, slot.ErrInvalidTimeRange),
		errors.Is(err, slot.ErrUnknownServiceType):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, profile.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotOverlap):
		writeError(w, http.StatusConflict, "slot_overlap", err.Error())
	case errors.Is(err, slot.ErrEditConflict):
		writeError(w, http.StatusConflict, "slot_not_editable", err.Error())
	case errors.Is(err, slot.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "someone else just booked this slot")
	case errors.Is(err, slot.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
