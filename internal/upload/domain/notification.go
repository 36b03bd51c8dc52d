package domain

// StatusConfig holds the notification text for one lifecycle phase
type StatusConfig struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	AutoClear bool   `json:"auto_clear,omitempty"`
}

// NotificationConfig is carried alongside a job and persisted with it. The
// dispatch path never inspects it.
type NotificationConfig struct {
	Enabled         bool         `json:"enabled"`
	ChannelID       string       `json:"channel_id,omitempty"`
	RingToneEnabled bool         `json:"ring_tone_enabled,omitempty"`
	Progress        StatusConfig `json:"progress"`
	Success         StatusConfig `json:"success"`
	Error           StatusConfig `json:"error"`
	Cancelled       StatusConfig `json:"cancelled"`
}
