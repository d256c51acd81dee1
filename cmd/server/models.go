package main

import (
	"github.com/gridbase/automations/base"
	"github.com/gridbase/automations/dispatch"
)

// API request and response models.

// CreateBaseRequest is the request body for creating a base.
type CreateBaseRequest struct {
	ID      string       `json:"id,omitempty"`
	Name    string       `json:"name" example:"Product Catalog"`
	Schemas base.Schemas `json:"schemas"`
}

// UpdateSchemasRequest is the request body for replacing a base's table
// schemas.
type UpdateSchemasRequest struct {
	Schemas base.Schemas `json:"schemas"`
}

// DryRunRequest supplies the simulated trigger occurrence for a test run.
type DryRunRequest struct {
	TableID  string         `json:"tableId,omitempty"`
	RecordID string         `json:"recordId,omitempty"`
	Record   map[string]any `json:"record,omitempty"`
	User     string         `json:"user,omitempty"`
}

// RecordEventRequest is the request body for reporting a row change.
type RecordEventRequest struct {
	dispatch.RecordEvent
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error   string `json:"error" example:"automation validation failed"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status      string `json:"status" example:"healthy"`
	BasesLoaded int    `json:"basesLoaded" example:"3"`
}
