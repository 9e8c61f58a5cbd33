package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mcd-eng/mcd-console-api/internal/dto"
	"github.com/mcd-eng/mcd-console-api/internal/models"
	appErrors "github.com/mcd-eng/mcd-console-api/pkg/errors"
)

const deviceResource = "device"

type projectReader interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
	FindByName(ctx context.Context, name string) (*models.Project, error)
}

type deviceRevisionStore interface {
	deviceWriter
	UpdateDiscussion(ctx context.Context, id string, discussion models.CommentList) error
	SearchFCs(ctx context.Context, projectID, prefix string, limit int) ([]string, error)
}

type changeLogWriter interface {
	InsertChanges(ctx context.Context, entries []models.ChangeEntry) error
}

type tagReader interface {
	FindByName(ctx context.Context, projectID, name string) (*models.Tag, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// DeviceQuery selects which historical view of a project's devices to
// fetch. Zero value means the current content. DeviceID narrows the result
// to one device; ChangedSince keeps only revisions written after that
// moment.
type DeviceQuery struct {
	AsOf         time.Time
	Tag          string
	DeviceID     string
	ChangedSince time.Time
}

// DeviceService manages the device records inside projects: batch edits,
// removals, cross-project copies, the discussion threads and autocomplete.
// Every edit produces new immutable revisions plus one new snapshot.
type DeviceService struct {
	projects   projectReader
	devices    deviceRevisionStore
	snapshots  snapshotWriter
	changes    changeLogWriter
	tags       tagReader
	cache      cacheInvalidator
	audit      auditLogger
	masterName string
	logger     *zap.Logger
}

// NewDeviceService builds a DeviceService with sane defaults.
func NewDeviceService(
	projects projectReader,
	devices deviceRevisionStore,
	snapshots snapshotWriter,
	changes changeLogWriter,
	tags tagReader,
	cache cacheInvalidator,
	audit auditLogger,
	masterName string,
	logger *zap.Logger,
) *DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{
		projects:   projects,
		devices:    devices,
		snapshots:  snapshots,
		changes:    changes,
		tags:       tags,
		cache:      cache,
		audit:      audit,
		masterName: masterName,
		logger:     logger,
	}
}

// List returns the project's devices, optionally as of a moment in time or
// a named tag. A project with no snapshots is simply empty.
func (s *DeviceService) List(ctx context.Context, projectID string, query DeviceQuery, claims *models.JWTClaims) ([]dto.DeviceRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if _, err := s.loadProject(ctx, projectID); err != nil {
		return nil, err
	}

	snapshot, err := s.resolveSnapshot(ctx, projectID, query)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return []dto.DeviceRecord{}, nil
	}

	devices, err := s.devices.FindByIDs(ctx, snapshot.DeviceIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load devices")
	}

	records := make([]dto.DeviceRecord, 0, len(devices))
	for i := range devices {
		if query.DeviceID != "" && devices[i].ID != query.DeviceID {
			continue
		}
		if !query.ChangedSince.IsZero() && !devices[i].CreatedAt.After(query.ChangedSince) {
			continue
		}
		records = append(records, dto.EncodeDevice(&devices[i]))
	}
	return records, nil
}

// Update applies a batch of partial device edits to a project. Each edit
// produces a new revision; the batch produces exactly one new snapshot, so
// a multi-device import lands as a single history step. Unknown target IDs
// fail the whole batch.
func (s *DeviceService) Update(ctx context.Context, projectID string, updates []dto.DeviceUpdate, claims *models.JWTClaims) ([]dto.DeviceRecord, error) {
	project, err := s.requireEditable(ctx, projectID, claims)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no device updates provided")
	}

	_, byID, byFC, err := s.currentDevices(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var (
		revisions []*models.Device
		entries   []models.ChangeEntry
		replaced  = map[string]string{} // old revision id -> new revision id
		added     []string
	)
	for _, update := range updates {
		var base *models.Device
		switch {
		case update.ID != "":
			base = byID[update.ID]
			if base == nil {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("device %s is not part of the project", update.ID))
			}
		case update.FC != nil:
			// No id: match by fc so imports can address devices by name.
			base = byFC[*update.FC]
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, "device update needs an _id or an fc")
		}

		next, fieldChanges, err := update.Apply(base)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		if base != nil && len(fieldChanges) == 0 {
			continue
		}
		if base == nil {
			if _, taken := byFC[next.FC]; taken {
				return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("device %q already exists in the project", next.FC))
			}
		}

		next.ID = uuid.NewString()
		next.ProjectID = projectID
		next.CreatedAt = time.Now().UTC()
		revisions = append(revisions, next)
		byFC[next.FC] = next

		if base != nil {
			replaced[base.ID] = next.ID
		} else {
			added = append(added, next.ID)
		}
		for _, change := range fieldChanges {
			entries = append(entries, models.ChangeEntry{
				ProjectID: projectID,
				DeviceID:  next.ID,
				FC:        next.FC,
				Field:     change.Field,
				OldValue:  change.Old,
				NewValue:  change.New,
				Actor:     claims.Username,
			})
		}
	}

	if len(revisions) == 0 {
		return []dto.DeviceRecord{}, nil
	}

	if err := s.devices.InsertBatch(ctx, revisions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store device revisions")
	}

	// A batch may address the same device more than once (by fc); follow
	// the replacement chain so the snapshot points at the final revision.
	resolve := func(id string) string {
		for {
			newID, ok := replaced[id]
			if !ok {
				return id
			}
			id = newID
		}
	}

	next := make(pq.StringArray, 0, len(byID)+len(added))
	for id := range byID {
		next = append(next, resolve(id))
	}
	for _, id := range added {
		next = append(next, resolve(id))
	}

	if err := s.snapshots.Insert(ctx, &models.Snapshot{ProjectID: projectID, Author: claims.Username, DeviceIDs: next}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot project")
	}
	if err := s.changes.InsertChanges(ctx, entries); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record change log")
	}
	s.invalidate(ctx, projectID)

	records := make([]dto.DeviceRecord, 0, len(revisions))
	for _, rev := range revisions {
		records = append(records, dto.EncodeDevice(rev))
	}
	s.emitAudit(ctx, claims, models.AuditActionDeviceUpdate, project.ID, map[string]interface{}{
		"devices": len(revisions),
		"changes": len(entries),
	})
	return records, nil
}

// Remove drops devices from the project's current content by writing a new
// snapshot without them. The revisions themselves are kept: historical
// snapshots still reference them.
func (s *DeviceService) Remove(ctx context.Context, projectID string, deviceIDs []string, claims *models.JWTClaims) error {
	project, err := s.requireEditable(ctx, projectID, claims)
	if err != nil {
		return err
	}
	if len(deviceIDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "no device ids provided")
	}

	_, byID, _, err := s.currentDevices(ctx, projectID)
	if err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(deviceIDs))
	for _, id := range deviceIDs {
		if _, ok := byID[id]; !ok {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("device %s is not part of the project", id))
		}
		drop[id] = struct{}{}
	}

	next := make(pq.StringArray, 0, len(byID)-len(drop))
	for id := range byID {
		if _, gone := drop[id]; !gone {
			next = append(next, id)
		}
	}
	if err := s.snapshots.Insert(ctx, &models.Snapshot{ProjectID: projectID, Author: claims.Username, DeviceIDs: next}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot project")
	}
	s.invalidate(ctx, projectID)

	s.emitAudit(ctx, claims, models.AuditActionDeviceRemove, project.ID, map[string]interface{}{
		"removed": deviceIDs,
	})
	return nil
}

// CopyFrom copies devices from another project into this one, replacing
// same-fc devices already present. The copies are fresh revisions owned by
// the destination project; discussion threads travel with them.
func (s *DeviceService) CopyFrom(ctx context.Context, projectID string, req dto.CopyDevicesRequest, claims *models.JWTClaims) ([]dto.DeviceRecord, error) {
	_, err := s.requireEditable(ctx, projectID, claims)
	if err != nil {
		return nil, err
	}
	if req.FromProjectID == "" || len(req.DeviceIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "source project and device ids are required")
	}
	if _, err := s.loadProject(ctx, req.FromProjectID); err != nil {
		return nil, err
	}

	sources, err := s.devices.FindByIDs(ctx, req.DeviceIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load source devices")
	}
	if len(sources) != len(req.DeviceIDs) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "one or more source devices not found")
	}
	for i := range sources {
		if sources[i].ProjectID != req.FromProjectID {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("device %s does not belong to the source project", sources[i].ID))
		}
	}

	_, byID, byFC, err := s.currentDevices(ctx, projectID)
	if err != nil {
		return nil, err
	}

	replaced := map[string]string{}
	clones := make([]*models.Device, 0, len(sources))
	for i := range sources {
		clone := sources[i].Clone()
		clone.ID = uuid.NewString()
		clone.ProjectID = projectID
		clone.CreatedAt = time.Now().UTC()
		clones = append(clones, clone)
		if existing, ok := byFC[clone.FC]; ok {
			replaced[existing.ID] = clone.ID
		}
	}
	if err := s.devices.InsertBatch(ctx, clones); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy devices")
	}

	next := make(pq.StringArray, 0, len(byID)+len(clones))
	for id := range byID {
		if newID, ok := replaced[id]; ok {
			next = append(next, newID)
		} else {
			next = append(next, id)
		}
	}
	for _, clone := range clones {
		if _, wasReplacement := replacedValue(replaced, clone.ID); !wasReplacement {
			next = append(next, clone.ID)
		}
	}

	if err := s.snapshots.Insert(ctx, &models.Snapshot{ProjectID: projectID, Author: claims.Username, DeviceIDs: next}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot project")
	}
	s.invalidate(ctx, projectID)

	records := make([]dto.DeviceRecord, 0, len(clones))
	for _, clone := range clones {
		records = append(records, dto.EncodeDevice(clone))
	}
	s.emitAudit(ctx, claims, models.AuditActionDeviceUpdate, projectID, map[string]interface{}{
		"copied_from": req.FromProjectID,
		"devices":     len(clones),
	})
	return records, nil
}

// AddComment appends a discussion entry to a device revision. Discussion is
// the one thing that mutates in place: commenting does not spawn a new
// revision or snapshot.
func (s *DeviceService) AddComment(ctx context.Context, projectID, deviceID string, req dto.AddCommentRequest, claims *models.JWTClaims) (*dto.DeviceRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() && !project.IsEditor(claims.Username) && !project.IsApprover(claims.Username) {
		return nil, appErrors.ErrForbidden
	}
	if req.Comment == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "comment must not be empty")
	}

	device, err := s.requireProjectDevice(ctx, projectID, deviceID)
	if err != nil {
		return nil, err
	}

	// Newest first.
	discussion := append(models.CommentList{{
		ID:      uuid.NewString(),
		Author:  claims.Username,
		Comment: req.Comment,
		Time:    time.Now().UTC(),
	}}, device.Discussion...)

	if err := s.devices.UpdateDiscussion(ctx, deviceID, discussion); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store comment")
	}
	device.Discussion = discussion
	s.invalidate(ctx, projectID)

	record := dto.EncodeDevice(device)
	return &record, nil
}

// DeleteComment removes discussion entries from a device. Admin only.
func (s *DeviceService) DeleteComment(ctx context.Context, projectID, deviceID string, commentIDs []string, claims *models.JWTClaims) (*dto.DeviceRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !claims.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may delete comments")
	}
	if len(commentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no comment ids provided")
	}
	if _, err := s.loadProject(ctx, projectID); err != nil {
		return nil, err
	}

	device, err := s.requireProjectDevice(ctx, projectID, deviceID)
	if err != nil {
		return nil, err
	}

	drop := make(map[string]struct{}, len(commentIDs))
	for _, id := range commentIDs {
		drop[id] = struct{}{}
	}
	kept := make(models.CommentList, 0, len(device.Discussion))
	for _, comment := range device.Discussion {
		if _, gone := drop[comment.ID]; !gone {
			kept = append(kept, comment)
		}
	}
	if len(kept) == len(device.Discussion) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "comment not found")
	}

	if err := s.devices.UpdateDiscussion(ctx, deviceID, kept); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete comment")
	}
	device.Discussion = kept
	s.invalidate(ctx, projectID)

	record := dto.EncodeDevice(device)
	return &record, nil
}

// SearchFCs returns fc identifiers from the master project's current
// content matching a prefix, for autocomplete.
func (s *DeviceService) SearchFCs(ctx context.Context, prefix string, limit int, claims *models.JWTClaims) ([]string, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	master, err := s.projects.FindByName(ctx, s.masterName)
	if err != nil {
		if err == sql.ErrNoRows {
			return []string{}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master project")
	}
	fcs, err := s.devices.SearchFCs(ctx, master.ID, prefix, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to search devices")
	}
	return fcs, nil
}

// resolveSnapshot picks the snapshot matching the query: a named tag, a
// moment in time, or the latest. Returns nil when the project has no
// content yet.
func (s *DeviceService) resolveSnapshot(ctx context.Context, projectID string, query DeviceQuery) (*models.Snapshot, error) {
	asOf := query.AsOf
	if query.Tag != "" {
		tag, err := s.tags.FindByName(ctx, projectID, query.Tag)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("tag %q not found", query.Tag))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tag")
		}
		asOf = tag.AsOf
	}

	var (
		snapshot *models.Snapshot
		err      error
	)
	if asOf.IsZero() {
		snapshot, err = s.snapshots.Latest(ctx, projectID)
	} else {
		snapshot, err = s.snapshots.LatestAsOf(ctx, projectID, asOf)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	return snapshot, nil
}

// currentDevices loads the project's current content indexed by revision id
// and by fc.
func (s *DeviceService) currentDevices(ctx context.Context, projectID string) ([]models.Device, map[string]*models.Device, map[string]*models.Device, error) {
	snapshot, err := s.resolveSnapshot(ctx, projectID, DeviceQuery{})
	if err != nil {
		return nil, nil, nil, err
	}

	var devices []models.Device
	if snapshot != nil && len(snapshot.DeviceIDs) > 0 {
		devices, err = s.devices.FindByIDs(ctx, snapshot.DeviceIDs)
		if err != nil {
			return nil, nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load devices")
		}
	}

	byID := make(map[string]*models.Device, len(devices))
	byFC := make(map[string]*models.Device, len(devices))
	for i := range devices {
		byID[devices[i].ID] = &devices[i]
		byFC[devices[i].FC] = &devices[i]
	}
	return devices, byID, byFC, nil
}

func (s *DeviceService) requireProjectDevice(ctx context.Context, projectID, deviceID string) (*models.Device, error) {
	_, byID, _, err := s.currentDevices(ctx, projectID)
	if err != nil {
		return nil, err
	}
	device, ok := byID[deviceID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("device %s is not part of the project", deviceID))
	}
	return device, nil
}

func (s *DeviceService) loadProject(ctx context.Context, projectID string) (*models.Project, error) {
	if projectID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "project id is required")
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

// requireEditable loads the project and checks that the caller may change
// its content right now: admins always, editors only while the project is
// in development. The master project's content only changes through the
// approval workflow.
func (s *DeviceService) requireEditable(ctx context.Context, projectID string, claims *models.JWTClaims) (*models.Project, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	project, err := s.loadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Name == s.masterName {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the master project only changes through approvals")
	}
	if !claims.IsAdmin() && !project.IsEditor(claims.Username) {
		return nil, appErrors.ErrForbidden
	}
	if !project.IsInDevelopment() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "devices can only be edited while the project is in development")
	}
	return project, nil
}

func (s *DeviceService) invalidate(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "project:"+projectID+":*"); err != nil {
		s.logger.Warn("failed to invalidate project cache", zap.String("project_id", projectID), zap.Error(err))
	}
}

func (s *DeviceService) emitAudit(ctx context.Context, actor *models.JWTClaims, action, resourceID string, payload map[string]interface{}) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(payload)
	log := &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   deviceResource,
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "device-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to record device audit", zap.Error(err))
	}
}

func replacedValue(replaced map[string]string, id string) (string, bool) {
	for oldID, newID := range replaced {
		if newID == id {
			return oldID, true
		}
	}
	return "", false
}
