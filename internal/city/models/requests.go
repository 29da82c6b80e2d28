package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	dErrors "citygate/pkg/domain-errors"
)

// UpsertCityRequest is the POST /city body. Population stays raw so that
// absent, null, fractional and quoted values can be told apart from 0.
type UpsertCityRequest struct {
	City       string          `json:"city"`
	Population json.RawMessage `json:"population"`
}

func (r *UpsertCityRequest) Normalize() {
	if r == nil {
		return
	}
	r.City = strings.TrimSpace(r.City)
	r.Population = bytes.TrimSpace(r.Population)
}

// Validate checks required fields first, then syntax, then range.
func (r *UpsertCityRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.City == "" {
		return dErrors.New(dErrors.CodeValidation, "city is required")
	}
	if len(Key(r.City)) > MaxKeyBytes {
		return dErrors.New(dErrors.CodeValidation, "city must be 512 bytes or less")
	}
	if len(r.Population) == 0 || string(r.Population) == "null" {
		return dErrors.New(dErrors.CodeValidation, "population is required")
	}
	n, err := strconv.ParseInt(string(r.Population), 10, 64)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "population must be an integer")
	}
	if n < 0 {
		return dErrors.New(dErrors.CodeValidation, "population must be a non-negative integer")
	}
	return nil
}

// ToCity converts a validated request into a City.
func (r *UpsertCityRequest) ToCity() (*City, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n, _ := strconv.ParseInt(string(r.Population), 10, 64)
	return NewCity(r.City, n)
}

// UpsertCityResponse confirms a write.
type UpsertCityResponse struct {
	Message string `json:"message"`
}

// NewUpsertCityResponse formats the confirmation with the submitted name.
func NewUpsertCityResponse(c *City) UpsertCityResponse {
	return UpsertCityResponse{Message: c.Name + " upserted"}
}
