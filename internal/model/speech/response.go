package speech

// HealthResponse reports which speech engines are configured.
type HealthResponse struct {
	Status      string `json:"status"`
	Recognition bool   `json:"recognition"`
	Synthesis   bool   `json:"synthesis"`
}
