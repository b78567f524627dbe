package mykafka

import "time"

const (
	EventUserRegistered     = "user_registered"
	EventUserLoggedIn       = "user_logged_in"
	EventCalculationCreated = "calculation_created"
	EventCalculationUpdated = "calculation_updated"
	EventCalculationDeleted = "calculation_deleted"
)

type UserEvent struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

type CalculationEvent struct {
	Type          string    `json:"type"`
	CalculationID string    `json:"calculation_id"`
	UserID        string    `json:"user_id"`
	Operation     string    `json:"operation,omitempty"`
	Inputs        []float64 `json:"inputs,omitempty"`
	Result        float64   `json:"result,omitempty"`
	At            time.Time `json:"at"`
}
