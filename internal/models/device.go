package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DeviceState is the ordered lifecycle state of a device record.
type DeviceState string

const (
	StateUnknown              DeviceState = "Unknown"
	StateConceptual           DeviceState = "Conceptual"
	StatePlanned              DeviceState = "Planned"
	StateReadyForInstallation DeviceState = "ReadyForInstallation"
	StateInstalled            DeviceState = "Installed"
	StateCommissioned         DeviceState = "Commissioned"
	StateOperational          DeviceState = "Operational"
	StateNonOperational       DeviceState = "NonOperational"
	StateDecommissioned       DeviceState = "Decommissioned"
	StateRemoved              DeviceState = "Removed"
)

// deviceStateDetail holds everything known about a state. Wire spelling,
// display label and ordering live in this single table so the enum cannot
// drift apart from its presentation the way two mirrored enums would.
type deviceStateDetail struct {
	SortOrder   int
	Label       string
	Description string
}

var deviceStateDetails = map[DeviceState]deviceStateDetail{
	StateConceptual:           {0, "Conceptual", "No firm plans to proceed with applying this configuration; still under heavy development."},
	StatePlanned:              {1, "Planned", "A planned configuration, installation planning is underway."},
	StateReadyForInstallation: {2, "Ready for installation", "Configuration is designated as ready for installation. Installation is imminent."},
	StateInstalled:            {3, "Installed", "Component is physically installed but not fully operational."},
	StateCommissioned:         {4, "Commissioned", "Component is commissioned."},
	StateOperational:          {5, "Operational", "Component is operational, commissioning is complete."},
	StateNonOperational:       {6, "Non-operational", "Component remains installed but is slated for removal."},
	StateDecommissioned:       {7, "De-commissioned", "Component is de-commissioned."},
	StateRemoved:              {8, "Removed", "Component is no longer part of the configuration, record is maintained."},
}

// ParseDeviceState maps a wire spelling onto the enum, returning the
// Unknown sentinel for anything unrecognised.
func ParseDeviceState(raw string) DeviceState {
	state := DeviceState(raw)
	if _, ok := deviceStateDetails[state]; ok {
		return state
	}
	return StateUnknown
}

// Valid reports whether the state is a known lifecycle member (Unknown is
// the sentinel, not a member).
func (s DeviceState) Valid() bool {
	_, ok := deviceStateDetails[s]
	return ok
}

// Label returns the display spelling for the state.
func (s DeviceState) Label() string {
	if d, ok := deviceStateDetails[s]; ok {
		return d.Label
	}
	return string(StateUnknown)
}

// Description returns the long-form description for the state.
func (s DeviceState) Description() string {
	if d, ok := deviceStateDetails[s]; ok {
		return d.Description
	}
	return ""
}

// SortOrder returns the position of the state in the lifecycle. Unknown
// sorts before everything.
func (s DeviceState) SortOrder() int {
	if d, ok := deviceStateDetails[s]; ok {
		return d.SortOrder
	}
	return -1
}

// Before reports whether s precedes other in the lifecycle ordering.
func (s DeviceState) Before(other DeviceState) bool {
	return s.SortOrder() < other.SortOrder()
}

// DeviceStates returns all known states in lifecycle order.
func DeviceStates() []DeviceState {
	states := make([]DeviceState, 0, len(deviceStateDetails))
	for s := range deviceStateDetails {
		states = append(states, s)
	}
	for i := 1; i < len(states); i++ {
		for j := i; j > 0 && states[j].SortOrder() < states[j-1].SortOrder(); j-- {
			states[j], states[j-1] = states[j-1], states[j]
		}
	}
	return states
}

// Comment is a single discussion entry on a device, newest first.
type Comment struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Comment string    `json:"comment"`
	Time    time.Time `json:"time"`
}

// CommentList stores the discussion thread as a JSON column.
type CommentList []Comment

// Value implements driver.Valuer.
func (c CommentList) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

// Scan implements sql.Scanner.
func (c *CommentList) Scan(src interface{}) error {
	if src == nil {
		*c = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into CommentList", src)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	return json.Unmarshal(raw, c)
}

// Device is one immutable revision of a device placement record (FFT).
// Edits never mutate a row; they insert a new revision and repoint the
// project's snapshot, so every historical state stays queryable.
//
// All numeric placement fields are pointers: an absent value is
// semantically distinct from zero.
type Device struct {
	ID        string      `db:"id" json:"id"`
	ProjectID string      `db:"project_id" json:"project_id"`
	FC        string      `db:"fc" json:"fc"`
	FG        string      `db:"fg" json:"fg"`
	State     DeviceState `db:"state" json:"state"`

	TCPartNo string `db:"tc_part_no" json:"tc_part_no,omitempty"`
	Stand    string `db:"stand" json:"stand,omitempty"`
	Area     string `db:"area" json:"area,omitempty"`
	Beamline string `db:"beamline" json:"beamline,omitempty"`
	Comments string `db:"comments" json:"comments,omitempty"`

	NomLocX *float64 `db:"nom_loc_x" json:"nom_loc_x,omitempty"`
	NomLocY *float64 `db:"nom_loc_y" json:"nom_loc_y,omitempty"`
	NomLocZ *float64 `db:"nom_loc_z" json:"nom_loc_z,omitempty"`
	NomAngX *float64 `db:"nom_ang_x" json:"nom_ang_x,omitempty"`
	NomAngY *float64 `db:"nom_ang_y" json:"nom_ang_y,omitempty"`
	NomAngZ *float64 `db:"nom_ang_z" json:"nom_ang_z,omitempty"`
	NomDimX *float64 `db:"nom_dim_x" json:"nom_dim_x,omitempty"`
	NomDimY *float64 `db:"nom_dim_y" json:"nom_dim_y,omitempty"`
	NomDimZ *float64 `db:"nom_dim_z" json:"nom_dim_z,omitempty"`

	RayTrace *bool `db:"ray_trace" json:"ray_trace,omitempty"`

	Discussion CommentList `db:"discussion" json:"discussion"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Clone returns a deep copy of the device, suitable for deriving a new
// revision without aliasing pointer fields or the discussion slice.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	out := *d
	out.NomLocX = cloneFloat(d.NomLocX)
	out.NomLocY = cloneFloat(d.NomLocY)
	out.NomLocZ = cloneFloat(d.NomLocZ)
	out.NomAngX = cloneFloat(d.NomAngX)
	out.NomAngY = cloneFloat(d.NomAngY)
	out.NomAngZ = cloneFloat(d.NomAngZ)
	out.NomDimX = cloneFloat(d.NomDimX)
	out.NomDimY = cloneFloat(d.NomDimY)
	out.NomDimZ = cloneFloat(d.NomDimZ)
	if d.RayTrace != nil {
		v := *d.RayTrace
		out.RayTrace = &v
	}
	if d.Discussion != nil {
		out.Discussion = append(CommentList(nil), d.Discussion...)
	}
	return &out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
