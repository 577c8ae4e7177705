package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kineticpt/booking-core/internal/payment"
	"github.com/kineticpt/booking-core/internal/slot"
)

func createPaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", validationDetails(err))
			return
		}

		bookingID, _ := uuid.Parse(req.BookingID)
		patientID, _ := uuid.Parse(req.PatientID)
		therapistID, _ := uuid.Parse(req.TherapistID)

		created, err := svc.CreateIntent(r.Context(), bookingID, patientID, therapistID, req.Amount, req.Currency, payment.Rail(req.Rail))
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toPaymentResponse(created))
	}
}

// confirmCallbackHandler consumes the card/wallet processor's success
// callback.
func confirmCallbackHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		confirmed, err := svc.ConfirmCardOrWallet(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(confirmed))
	}
}

func listManualPaymentsHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		therapistID, err := uuid.Parse(r.URL.Query().Get("therapist_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_therapist_id", "therapist_id must be a valid UUID")
			return
		}

		items, err := svc.ListPendingManualTransfers(r.Context(), therapistID)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		resp := make([]ManualReviewResponse, 0, len(items))
		for i := range items {
			resp = append(resp, ManualReviewResponse{
				Payment:      toPaymentResponse(&items[i].Payment),
				VisitDate:    items[i].VisitDate.Format("2006-01-02"),
				StartTime:    items[i].StartTime,
				EndTime:      items[i].EndTime,
				ServiceType:  items[i].ServiceType,
				PatientName:  items[i].PatientName,
				PatientEmail: items[i].PatientEmail,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmManualPaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		confirmed, err := svc.ConfirmManualTransfer(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(confirmed))
	}
}

func rejectManualPaymentHandler(svc *payment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_payment_id", "id must be a valid UUID")
			return
		}

		rejected, err := svc.RejectManualTransfer(r.Context(), id)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toPaymentResponse(rejected))
	}
}

func handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payment.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, payment.ErrInvalidRail):
		writeError(w, http.StatusBadRequest, "invalid_rail", err.Error())
	case errors.Is(err, payment.ErrInvalidCurrency):
		writeError(w, http.StatusBadRequest, "invalid_currency", err.Error())
	case errors.Is(err, payment.ErrPaymentNotFound):
		writeError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, payment.ErrBookingNotPayable):
		writeError(w, http.StatusConflict, "booking_not_payable", err.Error())
	case errors.Is(err, payment.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, "already_confirmed", err.Error())
	case errors.Is(err, payment.ErrPaymentNotPending):
		writeError(w, http.StatusConflict, "payment_not_pending", err.Error())
	case errors.Is(err, payment.ErrWrongRail):
		writeError(w, http.StatusConflict, "wrong_rail", err.Error())
	case errors.Is(err, payment.ErrConfirmInProgress):
		writeError(w, http.StatusConflict, "confirm_in_progress", err.Error())
	case errors.Is(err, payment.ErrBookingFinalize):
		// Distinct code so operators can find these for manual
		// reconciliation.
		writeError(w, http.StatusInternalServerError, "booking_finalize_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
