package models

import (
	"fmt"
	"math"
	"strconv"
)

// Known installation areas and beamlines, used to validate the descriptive
// placement fields.
var (
	Areas     = []string{"EBD", "FEE", "H1.1", "H1.2", "H1.3", "H2", "XRT", "Alcove", "H4", "H4.5", "H5", "H6"}
	Beamlines = []string{"TMO", "RIX", "TXI-SXR", "TXI-HXR", "XPP", "DXS", "MFX", "CXI", "MEC"}
)

// FieldKind describes the value type of a device attribute.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldFloat
	FieldBool
	FieldState
)

// FieldSpec is the single source of truth for one device attribute: its
// wire name, type, whether it is required, and an optional numeric range.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	Min      float64
	Max      float64
	HasRange bool
}

// DeviceFieldSpecs lists every editable device attribute by wire name.
// Metadata (id, project_id, created_at, discussion) is deliberately not
// part of this table: it can never be set or copied through a field edit.
var DeviceFieldSpecs = map[string]FieldSpec{
	"fc":         {Name: "fc", Kind: FieldText, Required: true},
	"fg":         {Name: "fg", Kind: FieldText},
	"state":      {Name: "state", Kind: FieldState, Required: true},
	"tc_part_no": {Name: "tc_part_no", Kind: FieldText},
	"stand":      {Name: "stand", Kind: FieldText},
	"area":       {Name: "area", Kind: FieldText},
	"beamline":   {Name: "beamline", Kind: FieldText},
	"comments":   {Name: "comments", Kind: FieldText},
	"nom_loc_x":  {Name: "nom_loc_x", Kind: FieldFloat},
	"nom_loc_y":  {Name: "nom_loc_y", Kind: FieldFloat},
	"nom_loc_z":  {Name: "nom_loc_z", Kind: FieldFloat, Min: 0, Max: 2000, HasRange: true},
	"nom_ang_x":  {Name: "nom_ang_x", Kind: FieldFloat, Min: -math.Pi, Max: math.Pi, HasRange: true},
	"nom_ang_y":  {Name: "nom_ang_y", Kind: FieldFloat, Min: -math.Pi, Max: math.Pi, HasRange: true},
	"nom_ang_z":  {Name: "nom_ang_z", Kind: FieldFloat, Min: -math.Pi, Max: math.Pi, HasRange: true},
	"nom_dim_x":  {Name: "nom_dim_x", Kind: FieldFloat},
	"nom_dim_y":  {Name: "nom_dim_y", Kind: FieldFloat},
	"nom_dim_z":  {Name: "nom_dim_z", Kind: FieldFloat},
	"ray_trace":  {Name: "ray_trace", Kind: FieldBool},
}

// DeviceFieldOrder lists the editable attributes in their canonical
// display order. Keep in sync with DeviceFieldSpecs.
var DeviceFieldOrder = []string{
	"fc", "fg", "state", "tc_part_no", "stand", "area", "beamline", "comments",
	"nom_loc_x", "nom_loc_y", "nom_loc_z",
	"nom_ang_x", "nom_ang_y", "nom_ang_z",
	"nom_dim_x", "nom_dim_y", "nom_dim_z",
	"ray_trace",
}

// ValidateRange checks a float value against the field's allowed range.
func (f FieldSpec) ValidateRange(v float64) error {
	if f.HasRange && (v < f.Min || v > f.Max) {
		return fmt.Errorf("invalid range for %s: expected [%g, %g], got %g", f.Name, f.Min, f.Max, v)
	}
	return nil
}

// ValidateDevice checks a device revision before it is persisted. It fails
// closed: any violation blocks the whole write.
func ValidateDevice(d *Device) error {
	if d == nil {
		return fmt.Errorf("device is nil")
	}
	if d.FC == "" {
		return fmt.Errorf("device fc must not be empty")
	}
	if !d.State.Valid() {
		return fmt.Errorf("invalid device state %q", string(d.State))
	}
	if d.Area != "" && !contains(Areas, d.Area) {
		return fmt.Errorf("%q is not a valid area", d.Area)
	}
	if d.Beamline != "" && !contains(Beamlines, d.Beamline) {
		return fmt.Errorf("%q is not a valid beamline", d.Beamline)
	}

	numeric := map[string]*float64{
		"nom_loc_x": d.NomLocX, "nom_loc_y": d.NomLocY, "nom_loc_z": d.NomLocZ,
		"nom_ang_x": d.NomAngX, "nom_ang_y": d.NomAngY, "nom_ang_z": d.NomAngZ,
		"nom_dim_x": d.NomDimX, "nom_dim_y": d.NomDimY, "nom_dim_z": d.NomDimZ,
	}
	for name, val := range numeric {
		if val == nil {
			continue
		}
		if err := DeviceFieldSpecs[name].ValidateRange(*val); err != nil {
			return err
		}
	}
	return nil
}

// FieldValues flattens a device into its set attribute values keyed by wire
// name. Absent numeric fields are omitted entirely rather than rendered as
// zero, so a missing value and zero never compare equal.
func (d *Device) FieldValues() map[string]string {
	if d == nil {
		return nil
	}
	out := map[string]string{
		"fc":    d.FC,
		"state": string(d.State),
	}
	text := map[string]string{
		"fg": d.FG, "tc_part_no": d.TCPartNo, "stand": d.Stand,
		"area": d.Area, "beamline": d.Beamline, "comments": d.Comments,
	}
	for name, v := range text {
		if v != "" {
			out[name] = v
		}
	}
	numeric := map[string]*float64{
		"nom_loc_x": d.NomLocX, "nom_loc_y": d.NomLocY, "nom_loc_z": d.NomLocZ,
		"nom_ang_x": d.NomAngX, "nom_ang_y": d.NomAngY, "nom_ang_z": d.NomAngZ,
		"nom_dim_x": d.NomDimX, "nom_dim_y": d.NomDimY, "nom_dim_z": d.NomDimZ,
	}
	for name, v := range numeric {
		if v != nil {
			out[name] = FormatFloat(*v)
		}
	}
	if d.RayTrace != nil {
		out["ray_trace"] = strconv.FormatBool(*d.RayTrace)
	}
	return out
}

// FormatFloat renders a float the same way everywhere, so values copied
// verbatim between projects always compare equal.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}
