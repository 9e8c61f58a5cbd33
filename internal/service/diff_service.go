package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DiffService compares the current device content of two projects field by
// field. Devices are matched across projects by fc; values compare on their
// canonical string form, so a value copied verbatim is never reported as a
// difference.
type DiffService struct {
	projects   projectReader
	snapshots  snapshotReader
	devices    deviceReader
	cache      cacheStore
	masterName string
	cacheTTL   time.Duration
	logger     *zap.Logger
}

// NewDiffService builds a DiffService with sane defaults.
func NewDiffService(
	projects projectReader,
	snapshots snapshotReader,
	devices deviceReader,
	cache cacheStore,
	masterName string,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DiffService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiffService{
		projects:   projects,
		snapshots:  snapshots,
		devices:    devices,
		cache:      cache,
		masterName: masterName,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// ParseDiffKey splits a diff record key into its device id and field name.
// Keys split on the first dot only: field names may themselves contain
// dots. A key without a field component is a broken contract, not user
// error.
func ParseDiffKey(key string) (deviceID, field string, err error) {
	idx := strings.Index(key, ".")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", appErrors.Clone(appErrors.ErrContractViolation, fmt.Sprintf("malformed diff key %q", key))
	}
	return key[:idx], key[idx+1:], nil
}

// Diff compares projectID against otherID. With approvedOnly set, the
// comparison is limited to devices present in the master project's current
// (approved) content.
func (s *DiffService) Diff(ctx context.Context, projectID, otherID string, approvedOnly bool, claims *models.JWTClaims) (*models.ProjectDiff, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if projectID == "" || otherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "both project ids are required")
	}
	if projectID == otherID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot diff a project against itself")
	}

	mine, err := s.loadViewable(ctx, projectID, claims)
	if err != nil {
		return nil, err
	}
	other, err := s.loadViewable(ctx, otherID, claims)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("project:%s:diff:%s:approved=%t", mine.ID, other.ID, approvedOnly)
	if s.cache != nil {
		var cached models.ProjectDiff
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	myDevices, err := s.currentContent(ctx, mine.ID)
	if err != nil {
		return nil, err
	}
	theirDevices, err := s.currentContent(ctx, other.ID)
	if err != nil {
		return nil, err
	}

	var scope map[string]struct{}
	if approvedOnly {
		scope, err = s.approvedScope(ctx)
		if err != nil {
			return nil, err
		}
	}

	diff := buildDiff(mine.ID, other.ID, myDevices, theirDevices, scope)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, diff, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache diff", zap.Error(err))
		}
	}
	return diff, nil
}

// buildDiff computes the field-level comparison. Every device in the union
// of both sides lands in exactly one status; scope (when non-nil) limits
// the union to the listed fcs.
func buildDiff(projectID, otherID string, mine, theirs []models.Device, scope map[string]struct{}) *models.ProjectDiff {
	myByFC := make(map[string]*models.Device, len(mine))
	for i := range mine {
		myByFC[mine[i].FC] = &mine[i]
	}
	theirByFC := make(map[string]*models.Device, len(theirs))
	for i := range theirs {
		theirByFC[theirs[i].FC] = &theirs[i]
	}

	fcs := make([]string, 0, len(myByFC)+len(theirByFC))
	seen := make(map[string]struct{}, len(myByFC)+len(theirByFC))
	for fc := range myByFC {
		fcs = append(fcs, fc)
		seen[fc] = struct{}{}
	}
	for fc := range theirByFC {
		if _, ok := seen[fc]; !ok {
			fcs = append(fcs, fc)
		}
	}
	sort.Strings(fcs)

	diff := &models.ProjectDiff{
		ProjectID: projectID,
		OtherID:   otherID,
		Devices:   []models.DeviceDiff{},
		Records:   []models.DiffRecord{},
	}
	for _, fc := range fcs {
		if scope != nil {
			if _, inScope := scope[fc]; !inScope {
				continue
			}
		}
		my := myByFC[fc]
		their := theirByFC[fc]

		entry := models.DeviceDiff{FC: fc, Fields: []models.DiffRecord{}}
		switch {
		case my != nil && their == nil:
			entry.DeviceID = my.ID
			entry.Status = models.DeviceDiffNew
		case my == nil && their != nil:
			entry.DeviceID = their.ID
			entry.Status = models.DeviceDiffMissing
		default:
			entry.DeviceID = my.ID
			entry.Status = models.DeviceDiffIdentical
		}

		records := compareDevices(entry.DeviceID, my, their)
		for _, record := range records {
			if record.Diff && entry.Status == models.DeviceDiffIdentical {
				entry.Status = models.DeviceDiffUpdated
			}
		}
		entry.Fields = records
		diff.Devices = append(diff.Devices, entry)
		diff.Records = append(diff.Records, records...)
	}
	return diff
}

// compareDevices flattens both sides and emits one record per field in the
// union. A field absent on one side keeps a nil value there; absent never
// equals zero or the empty string.
func compareDevices(deviceID string, my, their *models.Device) []models.DiffRecord {
	myValues := my.FieldValues()
	theirValues := their.FieldValues()

	records := make([]models.DiffRecord, 0, len(models.DeviceFieldOrder))
	for _, field := range models.DeviceFieldOrder {
		myValue, haveMine := myValues[field]
		theirValue, haveTheirs := theirValues[field]
		if !haveMine && !haveTheirs {
			continue
		}
		record := models.DiffRecord{
			Key:      deviceID + "." + field,
			DeviceID: deviceID,
			Field:    field,
			Diff:     haveMine != haveTheirs || myValue != theirValue,
		}
		if haveMine {
			v := myValue
			record.Mine = &v
		}
		if haveTheirs {
			v := theirValue
			record.Theirs = &v
		}
		records = append(records, record)
	}
	return records
}

func (s *DiffService) approvedScope(ctx context.Context) (map[string]struct{}, error) {
	master, err := s.projects.FindByName(ctx, s.masterName)
	if err != nil {
		if err == sql.ErrNoRows {
			return map[string]struct{}{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master project")
	}
	devices, err := s.currentContent(ctx, master.ID)
	if err != nil {
		return nil, err
	}
	scope := make(map[string]struct{}, len(devices))
	for i := range devices {
		scope[devices[i].FC] = struct{}{}
	}
	return scope, nil
}

func (s *DiffService) currentContent(ctx context.Context, projectID string) ([]models.Device, error) {
	snapshot, err := s.snapshots.Latest(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	devices, err := s.devices.FindByIDs(ctx, snapshot.DeviceIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load devices")
	}
	return devices, nil
}

func (s *DiffService) loadViewable(ctx context.Context, projectID string, claims *models.JWTClaims) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if claims.IsAdmin() || project.Name == s.masterName || project.IsApproved() {
		return project, nil
	}
	if project.IsHidden() {
		return nil, appErrors.ErrForbidden
	}
	if project.IsEditor(claims.Username) || project.HasApproved(claims.Username) {
		return project, nil
	}
	for _, approver := range project.Approvers {
		if approver == claims.Username {
			return project, nil
		}
	}
	return nil, appErrors.ErrForbidden
}
