package models

import (
	"time"

	"github.com/lib/pq"
)

// Therapist is a clinician that can receive bookings.
type Therapist struct {
	ID                   string         `db:"id" json:"id"`
	FullName             string         `db:"full_name" json:"full_name"`
	SpecialtyIDs         pq.StringArray `db:"specialty_ids" json:"specialty_ids"`
	Active               bool           `db:"active" json:"active"`
	CanTakeConsultations bool           `db:"can_take_consultations" json:"can_take_consultations"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// HasSpecialty reports whether the therapist holds the given specialty.
func (t Therapist) HasSpecialty(specialtyID string) bool {
	for _, id := range t.SpecialtyIDs {
		if id == specialtyID {
			return true
		}
	}
	return false
}

// TherapistFilter narrows therapist listings.
type TherapistFilter struct {
	SpecialtyID          string
	Active               *bool
	CanTakeConsultations *bool
}
