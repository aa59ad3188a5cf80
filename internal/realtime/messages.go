package realtime

import "encoding/json"

// Client to server events.
const (
	EventManagerOnline   = "managerOnline"
	EventJoinDepartment  = "joinDepartment"
	EventComplaintUpdate = "complaintUpdate"
)

// Server to client events.
const (
	EventReady               = "ready"
	EventJoinedDepartment    = "joinedDepartment"
	EventComplaintUpdated    = "complaintUpdated"
	EventManagerStatusUpdate = "managerStatusUpdate"
	EventError               = "error"
)

// SystemManagersRoom receives account status changes. Only principals that may
// view every department are placed in it.
const SystemManagersRoom = "system_managers"

// Envelope is an inbound frame; Data is decoded per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ReadyPayload is sent once a connection is admitted.
type ReadyPayload struct {
	ConnectionID string `json:"connectionId"`
	AccountID    string `json:"accountId"`
	Role         string `json:"role"`
	Department   string `json:"department,omitempty"`
}

// JoinPayload accepts {"department": "..."}; a bare JSON string is also accepted.
type JoinPayload struct {
	Department string `json:"department"`
}

// StatusPayload is broadcast to system managers on presence and access changes.
type StatusPayload struct {
	AccountID string `json:"accountId"`
	Online    *bool  `json:"online,omitempty"`
	IsActive  *bool  `json:"isActive,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// ErrorPayload carries a user visible message.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func errorMessage(message, code string) Message {
	return Message{Event: EventError, Data: ErrorPayload{Message: message, Code: code}}
}

func decodeJoin(raw json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, nil
	}
	var payload JoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", err
	}
	return payload.Department, nil
}
