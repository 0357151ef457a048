package speech

import "time"

// SpeechConfig 火山引擎语音服务配置
type SpeechConfig struct {
	AppID       string `json:"appId"`
	AccessToken string `json:"accessToken"`

	// ASR
	ASRResourceID string `json:"asrResourceId"`
	ASRLanguage   string `json:"asrLanguage"`
	ASREndpoint   string `json:"asrEndpoint,omitempty"`

	// TTS; voices are picked per locale
	TTSResourceID string  `json:"ttsResourceId"`
	VoiceEnglish  string  `json:"voiceEnglish"`
	VoiceArabic   string  `json:"voiceArabic"`
	TTSFormat     string  `json:"ttsFormat"`
	TTSSpeed      float32 `json:"ttsSpeed"`
	TTSVolume     float32 `json:"ttsVolume"`
	TTSEndpoint   string  `json:"ttsEndpoint,omitempty"`

	Timeout time.Duration `json:"timeout"`
}
