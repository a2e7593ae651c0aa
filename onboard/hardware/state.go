package hardware

import "time"

// TurretState is the controller's view of the hardware. It is owned by a single
// Controller and only mutated through its components.
type TurretState struct {
	Pan           int       `json:"pan"`
	Tilt          int       `json:"tilt"`
	Rev           bool      `json:"rev"`
	Fire          bool      `json:"fire"`
	LastRevStart  time.Time `json:"last_rev_start"`
	LastFireStart time.Time `json:"last_fire_start"`
	ScanDirection int       `json:"scan_direction"`
	Reloading     bool      `json:"reloading"`

	// RestoreTilt is the tilt a pending reload returns to. Only meaningful while
	// Reloading is set.
	RestoreTilt int `json:"restore_tilt,omitempty"`
}

// FireRequest is the per cycle relay intent.
type FireRequest struct {
	Rev  bool `json:"rev"`
	Fire bool `json:"fire"`
}
