package server

// CloneResponse is the success body of POST /clone_voice/.
type CloneResponse struct {
	AudioURL string `json:"audio_url"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device,omitempty"`
	ModelLoaded bool   `json:"model_loaded"`
}
