package dto

type SuccessResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// TransitionErrorResponse is the 400 body for rejected state changes.
type TransitionErrorResponse struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	CurrentStatus      string   `json:"current_status"`
	AllowedTransitions []string `json:"allowed_transitions"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  any    `json:"user"`
}

type HealthResponse struct {
	Status       string          `json:"status"`
	Capabilities map[string]bool `json:"capabilities"`
}
