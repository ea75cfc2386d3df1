package models

import "time"

// MonitoredMessage is the summary the monitor service logs for every
// message it receives.
type MonitoredMessage struct {
	Topic      string    `json:"topic"`
	Size       int       `json:"size"`
	ReceivedAt time.Time `json:"received_at"`
}
