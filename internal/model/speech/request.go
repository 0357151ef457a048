package speech

// SynthesizeRequest is the body of POST /api/speech/synthesize.
type SynthesizeRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice,omitempty"`
	Locale string `json:"locale,omitempty"` // empty: picked from the text
}
