package domain

import "time"

// TechnicianScore is the running point balance of a technician.
type TechnicianScore struct {
	TechnicianID string
	Points       int64
	UpdatedAt    time.Time
}
