package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/kineticpt/booking-core/internal/payment"
	"github.com/kineticpt/booking-core/internal/slot"
)

type CreateSlotRequest struct {
	TherapistID string `json:"therapist_id" validate:"required,uuid"`
	VisitDate   string `json:"visit_date" validate:"required,datetime=2006-01-02"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	ServiceType string `json:"service_type" validate:"required"`
}

type UpdateSlotRequest struct {
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
	ServiceType string `json:"service_type" validate:"required"`
}

type ReserveRequest struct {
	PatientID string `json:"patient_id" validate:"required,uuid"`
}

type CreatePaymentRequest struct {
	BookingID   string  `json:"booking_id" validate:"required,uuid"`
	PatientID   string  `json:"patient_id" validate:"required,uuid"`
	TherapistID string  `json:"therapist_id" validate:"required,uuid"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	Rail        string  `json:"rail" validate:"required"`
}

type SlotResponse struct {
	ID               uuid.UUID  `json:"id"`
	TherapistID      uuid.UUID  `json:"therapist_id"`
	VisitDate        string     `json:"visit_date"`
	StartTime        string     `json:"start_time"`
	EndTime          string     `json:"end_time"`
	ServiceType      string     `json:"service_type"`
	Status           string     `json:"status"`
	PatientID        *uuid.UUID `json:"patient_id,omitempty"`
	PendingStartedAt *time.Time `json:"pending_started_at,omitempty"`
}

func toSlotResponse(s *slot.Slot) SlotResponse {
	return SlotResponse{
		ID:               s.ID,
		TherapistID:      s.TherapistID,
		VisitDate:        s.VisitDate.Format("2006-01-02"),
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		ServiceType:      string(s.ServiceType),
		Status:           string(s.Status),
		PatientID:        s.PatientID,
		PendingStartedAt: s.PendingStartedAt,
	}
}

func toSlotResponses(slots []slot.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for i := range slots {
		out = append(out, toSlotResponse(&slots[i]))
	}
	return out
}

type PaymentResponse struct {
	ID        uuid.UUID `json:"id"`
	BookingID uuid.UUID `json:"booking_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Rail      string    `json:"rail"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	return PaymentResponse{
		ID:        p.ID,
		BookingID: p.BookingID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Rail:      string(p.Rail),
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
	}
}

// BookingResponse is a dashboard row: the patient's slot annotated with
// the latest payment state, if any.
type BookingResponse struct {
	Slot    SlotResponse     `json:"slot"`
	Payment *PaymentResponse `json:"payment,omitempty"`
}

type ManualReviewResponse struct {
	Payment      PaymentResponse `json:"payment"`
	VisitDate    string          `json:"visit_date"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	ServiceType  string          `json:"service_type"`
	PatientName  string          `json:"patient_name"`
	PatientEmail *string         `json:"patient_email,omitempty"`
}

type SweepResponse struct {
	Reclaimed int `json:"reclaimed"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
