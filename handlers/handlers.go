package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/llmops/provider-orchestrator/services"
	"github.com/llmops/provider-orchestrator/utils"
)

// Common error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, statusCode int, err string, message string) {
	respondJSON(w, statusCode, ErrorResponse{
		Error:   err,
		Message: message,
	})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
// Configuration and validation problems are the caller's fault; aggregate
// and upstream failures surface as bad gateway; storage trouble is a 503.
func respondServiceError(w http.ResponseWriter, err error) {
	if utils.IsValidationError(err) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: err.Error(),
			Details: fieldDetails(err),
		})
		return
	}

	if services.IsAggregateError(err) {
		respondError(w, http.StatusBadGateway, "upstream_failed", err.Error())
		return
	}

	switch services.GetErrorType(err) {
	case services.ErrorTypeConfiguration, services.ErrorTypeValidation:
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
			Details: services.GetErrorDetails(err),
		})
	case services.ErrorTypeNotFound:
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case services.ErrorTypeAggregate, services.ErrorTypeUpstream:
		respondError(w, http.StatusBadGateway, "upstream_failed", err.Error())
	case services.ErrorTypeStorage:
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func fieldDetails(err error) map[string]interface{} {
	fields := utils.GetValidationFields(err)
	if len(fields) == 0 {
		return nil
	}
	details := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		details[k] = v
	}
	return details
}

// decodeJSON parses a request body into dst with unknown fields rejected.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
