package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

func TestParseDiffKey(t *testing.T) {
	deviceID, field, err := ParseDiffKey("dev-1.nom_loc_z")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", deviceID)
	assert.Equal(t, "nom_loc_z", field)
}

func TestParseDiffKeySplitsOnFirstDotOnly(t *testing.T) {
	deviceID, field, err := ParseDiffKey("dev-1.fft.fc")
	require.NoError(t, err)
	assert.Equal(t, "dev-1", deviceID)
	assert.Equal(t, "fft.fc", field)
}

func TestParseDiffKeyWithoutFieldIsContractViolation(t *testing.T) {
	for _, key := range []string{"dev-1", "dev-1.", ".field", ""} {
		_, _, err := ParseDiffKey(key)
		require.Error(t, err, "key %q", key)
		appErr := appErrors.FromError(err)
		assert.Equal(t, appErrors.ErrContractViolation.Code, appErr.Code, "key %q", key)
	}
}

func deviceWith(fc string, nomLocZ *float64) models.Device {
	return models.Device{
		ID:      "dev-" + fc,
		FC:      fc,
		State:   models.StateConceptual,
		NomLocZ: nomLocZ,
	}
}

func TestBuildDiffClassifiesEveryDevice(t *testing.T) {
	z1, z2 := 700.0, 710.0
	mine := []models.Device{
		deviceWith("SHARED-SAME", &z1),
		deviceWith("SHARED-CHANGED", &z1),
		deviceWith("ONLY-MINE", nil),
	}
	theirs := []models.Device{
		deviceWith("SHARED-SAME", &z1),
		deviceWith("SHARED-CHANGED", &z2),
		deviceWith("ONLY-THEIRS", nil),
	}

	diff := buildDiff("proj-a", "proj-b", mine, theirs, nil)
	require.Len(t, diff.Devices, 4)

	byFC := map[string]models.DeviceDiff{}
	for _, entry := range diff.Devices {
		byFC[entry.FC] = entry
	}
	assert.Equal(t, models.DeviceDiffIdentical, byFC["SHARED-SAME"].Status)
	assert.Equal(t, models.DeviceDiffUpdated, byFC["SHARED-CHANGED"].Status)
	assert.Equal(t, models.DeviceDiffNew, byFC["ONLY-MINE"].Status)
	assert.Equal(t, models.DeviceDiffMissing, byFC["ONLY-THEIRS"].Status)
}

func TestBuildDiffIdenticalValuesNeverDiffer(t *testing.T) {
	// Devices copied verbatim must compare equal on every field.
	z := 741.15
	mine := []models.Device{deviceWith("COPY", &z)}
	theirs := []models.Device{deviceWith("COPY", &z)}

	diff := buildDiff("proj-a", "proj-b", mine, theirs, nil)
	for _, record := range diff.Records {
		assert.False(t, record.Diff, "field %s flagged as different", record.Field)
	}
}

func TestBuildDiffAbsentNeverEqualsZero(t *testing.T) {
	zero := 0.0
	mine := []models.Device{deviceWith("DEV", &zero)}
	theirs := []models.Device{deviceWith("DEV", nil)}

	diff := buildDiff("proj-a", "proj-b", mine, theirs, nil)
	var found bool
	for _, record := range diff.Records {
		if record.Field == "nom_loc_z" {
			found = true
			assert.True(t, record.Diff, "a set zero and an absent value must differ")
			require.NotNil(t, record.Mine)
			assert.Equal(t, "0", *record.Mine)
			assert.Nil(t, record.Theirs)
		}
	}
	assert.True(t, found)
}

func TestBuildDiffKeysSplitBackIntoDeviceAndField(t *testing.T) {
	z := 1.5
	diff := buildDiff("proj-a", "proj-b",
		[]models.Device{deviceWith("DEV", &z)},
		[]models.Device{deviceWith("DEV", nil)}, nil)

	for _, record := range diff.Records {
		deviceID, field, err := ParseDiffKey(record.Key)
		require.NoError(t, err)
		assert.Equal(t, record.DeviceID, deviceID)
		assert.Equal(t, record.Field, field)
	}
}

func TestBuildDiffScopeRestrictsDevices(t *testing.T) {
	mine := []models.Device{deviceWith("IN-SCOPE", nil), deviceWith("OUT-OF-SCOPE", nil)}
	scope := map[string]struct{}{"IN-SCOPE": {}}

	diff := buildDiff("proj-a", "proj-b", mine, nil, scope)
	require.Len(t, diff.Devices, 1)
	assert.Equal(t, "IN-SCOPE", diff.Devices[0].FC)
}

type diffProjectStub struct {
	projects map[string]*models.Project
	byName   map[string]*models.Project
}

func (s diffProjectStub) FindByID(ctx context.Context, id string) (*models.Project, error) {
	if p, ok := s.projects[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (s diffProjectStub) FindByName(ctx context.Context, name string) (*models.Project, error) {
	if p, ok := s.byName[name]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type diffSnapshotStub struct {
	latest map[string]*models.Snapshot
}

func (s diffSnapshotStub) Latest(ctx context.Context, projectID string) (*models.Snapshot, error) {
	if snap, ok := s.latest[projectID]; ok {
		return snap, nil
	}
	return nil, sql.ErrNoRows
}

func (s diffSnapshotStub) LatestAsOf(ctx context.Context, projectID string, asOf time.Time) (*models.Snapshot, error) {
	return nil, sql.ErrNoRows
}

type diffDeviceStub struct {
	devices map[string]models.Device
}

func (s diffDeviceStub) FindByID(ctx context.Context, id string) (*models.Device, error) {
	if d, ok := s.devices[id]; ok {
		return &d, nil
	}
	return nil, sql.ErrNoRows
}

func (s diffDeviceStub) FindByIDs(ctx context.Context, ids []string) ([]models.Device, error) {
	var out []models.Device
	for _, id := range ids {
		if d, ok := s.devices[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func TestDiffServiceComparesCurrentContent(t *testing.T) {
	z1, z2 := 700.0, 710.0
	projects := diffProjectStub{
		projects: map[string]*models.Project{
			"proj-a": {ID: "proj-a", Name: "A", Owner: "jdoe", Status: models.StatusDevelopment},
			"proj-b": {ID: "proj-b", Name: "B", Owner: "jdoe", Status: models.StatusDevelopment},
		},
	}
	snapshots := diffSnapshotStub{latest: map[string]*models.Snapshot{
		"proj-a": {ID: "snap-a", ProjectID: "proj-a", DeviceIDs: []string{"dev-a"}},
		"proj-b": {ID: "snap-b", ProjectID: "proj-b", DeviceIDs: []string{"dev-b"}},
	}}
	devices := diffDeviceStub{devices: map[string]models.Device{
		"dev-a": {ID: "dev-a", FC: "AT1L0-GAS", State: models.StateConceptual, NomLocZ: &z1},
		"dev-b": {ID: "dev-b", FC: "AT1L0-GAS", State: models.StateConceptual, NomLocZ: &z2},
	}}

	svc := NewDiffService(projects, snapshots, devices, nil, "Master", 0, nil)
	claims := &models.JWTClaims{UserID: "u1", Username: "jdoe"}

	diff, err := svc.Diff(context.Background(), "proj-a", "proj-b", false, claims)
	require.NoError(t, err)
	require.Len(t, diff.Devices, 1)
	assert.Equal(t, models.DeviceDiffUpdated, diff.Devices[0].Status)

	var zRecord *models.DiffRecord
	for i := range diff.Records {
		if diff.Records[i].Field == "nom_loc_z" {
			zRecord = &diff.Records[i]
		}
	}
	require.NotNil(t, zRecord)
	assert.True(t, zRecord.Diff)
	assert.Equal(t, "700", *zRecord.Mine)
	assert.Equal(t, "710", *zRecord.Theirs)
}

func TestDiffServiceRejectsSelfDiff(t *testing.T) {
	svc := NewDiffService(diffProjectStub{}, nil, nil, nil, "Master", 0, nil)
	claims := &models.JWTClaims{UserID: "u1", Username: "jdoe"}

	_, err := svc.Diff(context.Background(), "proj-1", "proj-1", false, claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDiffServiceRequiresAuthentication(t *testing.T) {
	svc := NewDiffService(diffProjectStub{}, nil, nil, nil, "Master", 0, nil)
	_, err := svc.Diff(context.Background(), "proj-1", "proj-2", false, nil)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
