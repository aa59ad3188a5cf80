package domain

// ComplaintStatus enumerates the statuses carried by realtime complaint updates.
type ComplaintStatus string

const (
	ComplaintStatusPending    ComplaintStatus = "Pending"
	ComplaintStatusInProgress ComplaintStatus = "In Progress"
	ComplaintStatusResolved   ComplaintStatus = "Resolved"
)

// Valid reports whether s is a known status.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintStatusPending, ComplaintStatusInProgress, ComplaintStatusResolved:
		return true
	}
	return false
}

// ComplaintStatusUpdate is published to a department room when a complaint changes status.
type ComplaintStatusUpdate struct {
	ID         string          `json:"id"`
	Status     ComplaintStatus `json:"status"`
	Assignee   string          `json:"assignee,omitempty"`
	Department string          `json:"department"`
}
