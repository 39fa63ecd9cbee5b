// pkg/models/api.go
package models

// Laravel-style validation error response
type ValidationErrorResponse struct {
	Message string              `json:"message" example:"Validation failed"`
	Errors  map[string][]string `json:"errors"`
}

// Generic error response (401/403/404/409/500)
type ErrorResponse struct {
	Error   bool   `json:"error" example:"true"`
	Message string `json:"message" example:"Forbidden"`
	Code    string `json:"code,omitempty" example:"FORBIDDEN"`
}

// Success envelope used by the counter-proposal endpoints.
type SuccessResponse struct {
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}
