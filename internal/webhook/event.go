package webhook

import "encoding/json"

// EventTypeRunStatus is the only event type this system acts on; all other
// types are acknowledged and ignored.
const EventTypeRunStatus = "task_run.status"

// Header names used by the processor's webhook deliveries.
const (
	HeaderDeliveryID = "webhook-id"
	HeaderTimestamp  = "webhook-timestamp"
	HeaderSignature  = "webhook-signature"
)

// Event is the envelope of a processor notification.
type Event struct {
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the run's status change. The metadata echoes back the
// opaque company ID attached at dispatch time, which is how the notification
// is correlated to a row without a URL lookup.
type EventData struct {
	RunID    string            `json:"run_id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CompanyID returns the correlation ID from the event metadata, or the empty
// string when absent.
func (d *EventData) CompanyID() string {
	return d.Metadata["company_id"]
}

// ErrorMessage returns the processor-supplied failure reason, or the empty
// string when none was reported.
func (d *EventData) ErrorMessage() string {
	if d.Error == nil {
		return ""
	}
	return d.Error.Message
}

// ParseEvent decodes a raw notification body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
