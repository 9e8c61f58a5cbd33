package dto

import (
	"fmt"

	"github.com/mcd-eng/mcd-console-api/internal/models"
)

// DeviceIdentity is the nested identity block the UI expects on every
// device record.
type DeviceIdentity struct {
	ID string `json:"_id,omitempty"`
	FC string `json:"fc"`
	FG string `json:"fg"`
}

// CommentRecord is one discussion entry in wire form.
type CommentRecord struct {
	ID      string   `json:"id,omitempty"`
	Author  string   `json:"author"`
	Comment string   `json:"comment"`
	Time    WireTime `json:"time"`
}

// DeviceRecord is the wire shape of a device revision. Numeric and boolean
// fields always appear in the payload; when unset they carry the
// empty-string sentinel instead of a zero value.
type DeviceRecord struct {
	FFT      DeviceIdentity `json:"fft"`
	State    string         `json:"state"`
	TCPartNo string         `json:"tc_part_no"`
	Stand    string         `json:"stand"`
	Area     string         `json:"area"`
	Beamline string         `json:"beamline"`
	Comments string         `json:"comments"`

	NomLocX OptionalFloat `json:"nom_loc_x"`
	NomLocY OptionalFloat `json:"nom_loc_y"`
	NomLocZ OptionalFloat `json:"nom_loc_z"`
	NomAngX OptionalFloat `json:"nom_ang_x"`
	NomAngY OptionalFloat `json:"nom_ang_y"`
	NomAngZ OptionalFloat `json:"nom_ang_z"`
	NomDimX OptionalFloat `json:"nom_dim_x"`
	NomDimY OptionalFloat `json:"nom_dim_y"`
	NomDimZ OptionalFloat `json:"nom_dim_z"`

	RayTrace OptionalBool `json:"ray_trace"`

	Discussion []CommentRecord `json:"discussion,omitempty"`
	Created    WireTime        `json:"created,omitempty"`
}

// EncodeDevice renders a device revision in wire form.
func EncodeDevice(d *models.Device) DeviceRecord {
	if d == nil {
		return DeviceRecord{}
	}
	rec := DeviceRecord{
		FFT:      DeviceIdentity{ID: d.ID, FC: d.FC, FG: d.FG},
		State:    string(d.State),
		TCPartNo: d.TCPartNo,
		Stand:    d.Stand,
		Area:     d.Area,
		Beamline: d.Beamline,
		Comments: d.Comments,
		NomLocX:  FloatFrom(d.NomLocX),
		NomLocY:  FloatFrom(d.NomLocY),
		NomLocZ:  FloatFrom(d.NomLocZ),
		NomAngX:  FloatFrom(d.NomAngX),
		NomAngY:  FloatFrom(d.NomAngY),
		NomAngZ:  FloatFrom(d.NomAngZ),
		NomDimX:  FloatFrom(d.NomDimX),
		NomDimY:  FloatFrom(d.NomDimY),
		NomDimZ:  FloatFrom(d.NomDimZ),
		RayTrace: BoolFrom(d.RayTrace),
		Created:  TimeFrom(d.CreatedAt),
	}
	for _, c := range d.Discussion {
		rec.Discussion = append(rec.Discussion, CommentRecord{
			ID:      c.ID,
			Author:  c.Author,
			Comment: c.Comment,
			Time:    TimeFrom(c.Time),
		})
	}
	return rec
}

// Decode converts the wire record into a domain device. An empty state is
// treated as Conceptual, the default for newly drafted records.
func (r DeviceRecord) Decode() (*models.Device, error) {
	state := models.StateConceptual
	if r.State != "" {
		state = models.ParseDeviceState(r.State)
		if !state.Valid() {
			return nil, fmt.Errorf("invalid device state %q", r.State)
		}
	}
	d := &models.Device{
		ID:        r.FFT.ID,
		FC:        r.FFT.FC,
		FG:        r.FFT.FG,
		State:     state,
		TCPartNo:  r.TCPartNo,
		Stand:     r.Stand,
		Area:      r.Area,
		Beamline:  r.Beamline,
		Comments:  r.Comments,
		NomLocX:   r.NomLocX.Ptr(),
		NomLocY:   r.NomLocY.Ptr(),
		NomLocZ:   r.NomLocZ.Ptr(),
		NomAngX:   r.NomAngX.Ptr(),
		NomAngY:   r.NomAngY.Ptr(),
		NomAngZ:   r.NomAngZ.Ptr(),
		NomDimX:   r.NomDimX.Ptr(),
		NomDimY:   r.NomDimY.Ptr(),
		NomDimZ:   r.NomDimZ.Ptr(),
		RayTrace:  r.RayTrace.Ptr(),
		CreatedAt: r.Created.Time,
	}
	for _, c := range r.Discussion {
		d.Discussion = append(d.Discussion, models.Comment{
			ID:      c.ID,
			Author:  c.Author,
			Comment: c.Comment,
			Time:    c.Time.Time,
		})
	}
	if err := models.ValidateDevice(d); err != nil {
		return nil, err
	}
	return d, nil
}

// DeviceUpdate is a partial edit of one device. Nil pointers are untouched
// fields; a present Optional* carrying the empty-string sentinel clears the
// field to absent.
type DeviceUpdate struct {
	ID string `json:"_id,omitempty"`

	FC       *string `json:"fc,omitempty"`
	FG       *string `json:"fg,omitempty"`
	State    *string `json:"state,omitempty"`
	TCPartNo *string `json:"tc_part_no,omitempty"`
	Stand    *string `json:"stand,omitempty"`
	Area     *string `json:"area,omitempty"`
	Beamline *string `json:"beamline,omitempty"`
	Comments *string `json:"comments,omitempty"`

	NomLocX *OptionalFloat `json:"nom_loc_x,omitempty"`
	NomLocY *OptionalFloat `json:"nom_loc_y,omitempty"`
	NomLocZ *OptionalFloat `json:"nom_loc_z,omitempty"`
	NomAngX *OptionalFloat `json:"nom_ang_x,omitempty"`
	NomAngY *OptionalFloat `json:"nom_ang_y,omitempty"`
	NomAngZ *OptionalFloat `json:"nom_ang_z,omitempty"`
	NomDimX *OptionalFloat `json:"nom_dim_x,omitempty"`
	NomDimY *OptionalFloat `json:"nom_dim_y,omitempty"`
	NomDimZ *OptionalFloat `json:"nom_dim_z,omitempty"`

	RayTrace *OptionalBool `json:"ray_trace,omitempty"`

	Discussion []CommentRecord `json:"discussion,omitempty"`
}

// FieldChange is one attribute transition produced by applying an update.
// Nil means absent on that side.
type FieldChange struct {
	Field string
	Old   *string
	New   *string
}

// Apply merges the update into base and returns the resulting revision
// along with the per-field changes. A nil base starts a fresh record with
// the Conceptual default state. Apply never mutates base and touches no
// storage; the caller persists the revision and the changelog together.
func (u DeviceUpdate) Apply(base *models.Device) (*models.Device, []FieldChange, error) {
	var next *models.Device
	if base == nil {
		next = &models.Device{State: models.StateConceptual}
	} else {
		next = base.Clone()
	}

	if u.FC != nil {
		next.FC = *u.FC
	}
	if u.FG != nil {
		next.FG = *u.FG
	}
	if u.State != nil {
		state := models.ParseDeviceState(*u.State)
		if !state.Valid() {
			return nil, nil, fmt.Errorf("invalid device state %q", *u.State)
		}
		next.State = state
	}
	if u.TCPartNo != nil {
		next.TCPartNo = *u.TCPartNo
	}
	if u.Stand != nil {
		next.Stand = *u.Stand
	}
	if u.Area != nil {
		next.Area = *u.Area
	}
	if u.Beamline != nil {
		next.Beamline = *u.Beamline
	}
	if u.Comments != nil {
		next.Comments = *u.Comments
	}

	for _, f := range []struct {
		src *OptionalFloat
		dst **float64
	}{
		{u.NomLocX, &next.NomLocX}, {u.NomLocY, &next.NomLocY}, {u.NomLocZ, &next.NomLocZ},
		{u.NomAngX, &next.NomAngX}, {u.NomAngY, &next.NomAngY}, {u.NomAngZ, &next.NomAngZ},
		{u.NomDimX, &next.NomDimX}, {u.NomDimY, &next.NomDimY}, {u.NomDimZ, &next.NomDimZ},
	} {
		if f.src != nil {
			*f.dst = f.src.Ptr()
		}
	}
	if u.RayTrace != nil {
		next.RayTrace = u.RayTrace.Ptr()
	}

	if err := models.ValidateDevice(next); err != nil {
		return nil, nil, err
	}
	return next, diffFieldValues(base, next), nil
}

// diffFieldValues lists the attributes whose flattened value differs
// between two revisions, in the stable field-spec order.
func diffFieldValues(before, after *models.Device) []FieldChange {
	old := before.FieldValues()
	cur := after.FieldValues()

	var changes []FieldChange
	for _, name := range models.DeviceFieldOrder {
		o, hadOld := old[name]
		n, hasNew := cur[name]
		if hadOld == hasNew && o == n {
			continue
		}
		fc := FieldChange{Field: name}
		if hadOld {
			v := o
			fc.Old = &v
		}
		if hasNew {
			v := n
			fc.New = &v
		}
		changes = append(changes, fc)
	}
	return changes
}
