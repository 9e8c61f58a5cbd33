package models

// DiffRecord is one field-level comparison between the same device in two
// projects. Key format: "<device-id>.<field-name>"; the field name may
// itself contain dots, so keys split on the first dot only.
type DiffRecord struct {
	Key      string  `json:"key"`
	DeviceID string  `json:"device_id"`
	Field    string  `json:"field"`
	Mine     *string `json:"my"`
	Theirs   *string `json:"other"`
	Diff     bool    `json:"diff"`
}

// DeviceDiffStatus classifies a device within a project diff.
type DeviceDiffStatus string

const (
	// DeviceDiffNew: present only in the left-hand project.
	DeviceDiffNew DeviceDiffStatus = "new"
	// DeviceDiffMissing: present only in the right-hand project.
	DeviceDiffMissing DeviceDiffStatus = "missing"
	// DeviceDiffUpdated: present in both with at least one differing field.
	DeviceDiffUpdated DeviceDiffStatus = "updated"
	// DeviceDiffIdentical: present in both with every field equal.
	DeviceDiffIdentical DeviceDiffStatus = "identical"
)

// DeviceDiff groups the field records for one device and classifies it.
// Every device in the union of the two projects lands in exactly one
// status.
type DeviceDiff struct {
	DeviceID string           `json:"device_id"`
	FC       string           `json:"fc"`
	Status   DeviceDiffStatus `json:"status"`
	Fields   []DiffRecord     `json:"fields"`
}

// ProjectDiff is the full result of comparing two projects.
type ProjectDiff struct {
	ProjectID string       `json:"project_id"`
	OtherID   string       `json:"other_id"`
	Devices   []DeviceDiff `json:"devices"`
	Records   []DiffRecord `json:"records"`
}
