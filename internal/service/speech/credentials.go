package speech

import (
	"errors"
	"strings"

	speechmodel "github.com/askislamically/backend/internal/model/speech"
)

// ErrMissingCredentials is returned when the Volcengine app id or token is unset.
var ErrMissingCredentials = errors.New("speech config needs an app id and an access token")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken
func resolveCredentials(cfg *speechmodel.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", ErrMissingCredentials
	}
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}
	return appID, token, nil
}
