package model

// Mode determines which query pipeline a submission routes through.
type Mode string

const (
	ModeChat     Mode = "chat"
	ModeDocument Mode = "document"
)

// ParseMode normalises the provided value into a known mode.
func ParseMode(v string) (Mode, bool) {
	switch Mode(v) {
	case ModeChat:
		return ModeChat, true
	case ModeDocument:
		return ModeDocument, true
	default:
		return "", false
	}
}

// ================ Config ================
type EngineConfig struct {
	RequestTimeout string `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	SessionBackend string `envconfig:"SESSION_BACKEND" default:"memory"`
	SessionTTL     string `envconfig:"SESSION_TTL" default:"0s"`
	ExportDir      string `envconfig:"EXPORT_DIR"`
}
