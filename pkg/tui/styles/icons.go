package styles

// Status icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconRunning = "▶"
	IconPending = "○"
	IconBullet  = "•"
)

// StateIcon returns the icon for an app or container state.
func StateIcon(running bool) string {
	if running {
		return IconSuccess
	}
	return IconError
}

// EventIcon returns the icon for a lifecycle event type.
func EventIcon(eventType string) string {
	switch eventType {
	case "failure":
		return IconError
	case "warning":
		return IconWarning
	default:
		return IconBullet
	}
}
