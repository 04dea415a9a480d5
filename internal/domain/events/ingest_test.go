package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/faultline-hq/faultline/internal/domain/issues"
	"github.com/faultline-hq/faultline/internal/domain/tags"
)

type memEventRepo struct {
	inserted []*Event
}

func (m *memEventRepo) Insert(_ context.Context, event *Event) error {
	m.inserted = append(m.inserted, event)
	return nil
}

func (m *memEventRepo) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type memGroupRepo struct {
	groups []*issues.Group
	seen   map[string]int
}

func (m *memGroupRepo) GetByULID(_ context.Context, ulid string) (*issues.Group, error) {
	for _, g := range m.groups {
		if g.ULID == ulid {
			return g, nil
		}
	}
	return nil, issues.ErrNotFound
}

func (m *memGroupRepo) FindByFingerprint(_ context.Context, projectID, fingerprint string) (*issues.Group, error) {
	for _, g := range m.groups {
		if g.ProjectID == projectID && g.Fingerprint == fingerprint {
			return g, nil
		}
	}
	return nil, issues.ErrNotFound
}

func (m *memGroupRepo) Create(_ context.Context, group *issues.Group) error {
	m.groups = append(m.groups, group)
	return nil
}

func (m *memGroupRepo) RecordSeen(_ context.Context, id string, _ time.Time) error {
	if m.seen == nil {
		m.seen = make(map[string]int)
	}
	m.seen[id]++
	return nil
}

func (m *memGroupRepo) DeleteStale(context.Context, time.Time) ([]string, error) {
	return nil, nil
}

type memTagRepo struct {
	values map[string]int64 // groupID/key/value -> count
	users  map[string]tags.EventUser
}

func (m *memTagRepo) ListValues(context.Context, string, string, tags.Sort, int) ([]tags.GroupTagValue, error) {
	return nil, nil
}

func (m *memTagRepo) UpsertValue(_ context.Context, groupID, key, value string, _ time.Time) error {
	if m.values == nil {
		m.values = make(map[string]int64)
	}
	m.values[groupID+"/"+key+"/"+value]++
	return nil
}

func (m *memTagRepo) UpsertEventUser(_ context.Context, projectID string, user tags.EventUser, tagValue string, _ time.Time) error {
	if m.users == nil {
		m.users = make(map[string]tags.EventUser)
	}
	m.users[projectID+"/"+tagValue] = user
	return nil
}

func (m *memTagRepo) DeleteValuesForGroups(context.Context, []string) (int64, error) {
	return 0, nil
}

func newTestService() (*IngestService, *memEventRepo, *memGroupRepo, *memTagRepo) {
	eventRepo := &memEventRepo{}
	groupRepo := &memGroupRepo{}
	tagRepo := &memTagRepo{}
	svc := NewIngestService(eventRepo, groupRepo, tagRepo, nil, zerolog.Nop())
	return svc, eventRepo, groupRepo, tagRepo
}

func TestIngestCreatesGroupAndTags(t *testing.T) {
	svc, eventRepo, groupRepo, tagRepo := newTestService()

	result, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message:   "boom",
		Platform:  "python",
		Timestamp: time.Now().Add(-time.Second),
		Tags:      map[string]string{"foo": "bar"},
	})
	require.NoError(t, err)
	require.True(t, result.NewGroup)
	require.Equal(t, int64(1), result.Group.TimesSeen)
	require.Len(t, eventRepo.inserted, 1)
	require.Len(t, groupRepo.groups, 1)
	require.Equal(t, int64(1), tagRepo.values[result.Group.ID+"/foo/bar"])
}

func TestIngestFoldsIntoExistingGroup(t *testing.T) {
	svc, eventRepo, groupRepo, _ := newTestService()

	first, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message: "boom", Platform: "python", Timestamp: time.Now().Add(-2 * time.Second),
	})
	require.NoError(t, err)

	second, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message: "boom", Platform: "python", Timestamp: time.Now().Add(-time.Second),
	})
	require.NoError(t, err)
	require.False(t, second.NewGroup)
	require.Equal(t, first.Group.ID, second.Group.ID)
	require.Len(t, groupRepo.groups, 1)
	require.Len(t, eventRepo.inserted, 2)
	require.Equal(t, 1, groupRepo.seen[first.Group.ID])
}

func TestIngestRecordsUserTagAndIdentity(t *testing.T) {
	svc, _, _, tagRepo := newTestService()

	result, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message:   "boom",
		Platform:  "python",
		Timestamp: time.Now().Add(-time.Second),
		User:      &UserContext{ID: "1", Email: "foo@example.com", Username: "foo", IPAddress: "127.0.0.1"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), tagRepo.values[result.Group.ID+"/user/id:1"])

	user, ok := tagRepo.users["proj-1/id:1"]
	require.True(t, ok)
	require.Equal(t, "foo@example.com", user.Email)
}

func TestIngestRejectsMissingMessage(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Ingest(context.Background(), "proj-1", EventInput{Platform: "python"})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestIngestRejectsAncientTimestamp(t *testing.T) {
	svc, _, _, _ := newTestService()

	_, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message: "boom", Platform: "python", Timestamp: time.Now().Add(-60 * 24 * time.Hour),
	})
	require.ErrorIs(t, err, ErrTooOld)
}

func TestIngestClampsFutureTimestamp(t *testing.T) {
	svc, eventRepo, _, _ := newTestService()

	_, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message: "boom", Platform: "python", Timestamp: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.False(t, eventRepo.inserted[0].Timestamp.After(time.Now()))
}

// racingGroupRepo simulates a concurrent writer that claims the
// fingerprint between the miss and the insert.
type racingGroupRepo struct {
	memGroupRepo
	winner *issues.Group
}

func (r *racingGroupRepo) Create(_ context.Context, group *issues.Group) error {
	r.winner = &issues.Group{
		ID:          "winner",
		ULID:        group.ULID,
		ProjectID:   group.ProjectID,
		Fingerprint: group.Fingerprint,
		Title:       group.Title,
		Platform:    group.Platform,
		Status:      group.Status,
		TimesSeen:   1,
		FirstSeen:   group.FirstSeen,
		LastSeen:    group.LastSeen,
	}
	r.groups = append(r.groups, r.winner)
	return issues.ErrExists
}

func TestIngestGroupCreateConflictFoldsIntoWinner(t *testing.T) {
	eventRepo := &memEventRepo{}
	groupRepo := &racingGroupRepo{}
	svc := NewIngestService(eventRepo, groupRepo, &memTagRepo{}, nil, zerolog.Nop())

	result, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message: "boom", Platform: "python", Timestamp: time.Now().Add(-time.Second),
	})
	require.NoError(t, err)
	require.False(t, result.NewGroup)
	require.Equal(t, "winner", result.Group.ID)
	require.Equal(t, 1, groupRepo.seen["winner"])
	require.Len(t, eventRepo.inserted, 1)
	require.Equal(t, "winner", eventRepo.inserted[0].GroupID)
}

type memTagCache struct {
	invalidated []string
}

func (c *memTagCache) InvalidateTagValues(_ context.Context, groupID, key string) error {
	c.invalidated = append(c.invalidated, groupID+"/"+key)
	return nil
}

func TestIngestInvalidatesTagValueCache(t *testing.T) {
	cache := &memTagCache{}
	svc := NewIngestService(&memEventRepo{}, &memGroupRepo{}, &memTagRepo{}, cache, zerolog.Nop())

	result, err := svc.Ingest(context.Background(), "proj-1", EventInput{
		Message:   "boom",
		Platform:  "python",
		Timestamp: time.Now().Add(-time.Second),
		Tags:      map[string]string{"foo": "bar"},
		User:      &UserContext{ID: "1"},
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{
		result.Group.ID + "/foo",
		result.Group.ID + "/user",
	}, cache.invalidated)
}
