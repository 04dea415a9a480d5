package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/faultline-hq/faultline/internal/domain/ids"
	"github.com/faultline-hq/faultline/internal/domain/issues"
	"github.com/faultline-hq/faultline/internal/domain/tags"
)

// maxTimestampAge rejects events older than this; stale aggregates
// are worse than dropped events.
const maxTimestampAge = 30 * 24 * time.Hour

type Repository interface {
	Insert(ctx context.Context, event *Event) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TagCache drops cached tag value listings once an ingest has changed
// the aggregates behind them. A nil cache skips invalidation.
type TagCache interface {
	InvalidateTagValues(ctx context.Context, groupID, key string) error
}

// IngestService folds incoming events into issues and tag aggregates.
type IngestService struct {
	events   Repository
	groups   issues.Repository
	tags     tags.Repository
	cache    TagCache
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewIngestService(events Repository, groups issues.Repository, tagRepo tags.Repository, cache TagCache, logger zerolog.Logger) *IngestService {
	return &IngestService{
		events:   events,
		groups:   groups,
		tags:     tagRepo,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// IngestResult reports where an event landed.
type IngestResult struct {
	Event    *Event
	Group    *issues.Group
	NewGroup bool
}

func (s *IngestService) Ingest(ctx context.Context, projectID string, input EventInput) (*IngestResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: missing project", ErrInvalidPayload)
	}
	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	now := time.Now().UTC()
	timestamp := input.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = now
	}
	if timestamp.After(now) {
		// Client clock skew: clamp instead of rejecting.
		timestamp = now
	}
	if now.Sub(timestamp) > maxTimestampAge {
		return nil, ErrTooOld
	}

	group, created, err := s.resolveGroup(ctx, projectID, input, timestamp)
	if err != nil {
		return nil, err
	}

	event, err := s.storeEvent(ctx, projectID, group.ID, input, timestamp, now)
	if err != nil {
		return nil, err
	}

	if err := s.recordTags(ctx, projectID, group.ID, input, timestamp); err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("project_id", projectID).
		Str("group", group.ULID).
		Bool("new_group", created).
		Msg("event ingested")

	return &IngestResult{Event: event, Group: group, NewGroup: created}, nil
}

func (s *IngestService) resolveGroup(ctx context.Context, projectID string, input EventInput, timestamp time.Time) (*issues.Group, bool, error) {
	fingerprint := Fingerprint(input.Platform, input.Message)

	group, err := s.groups.FindByFingerprint(ctx, projectID, fingerprint)
	if err == nil {
		return s.recordSeen(ctx, group, timestamp)
	}
	if !errors.Is(err, issues.ErrNotFound) {
		return nil, false, fmt.Errorf("find group: %w", err)
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, false, err
	}
	group = &issues.Group{
		ID:          ids.NewUUID(),
		ULID:        ulid,
		ProjectID:   projectID,
		Fingerprint: fingerprint,
		Title:       GroupTitle(input.Message),
		Platform:    input.Platform,
		Status:      issues.StatusUnresolved,
		TimesSeen:   1,
		FirstSeen:   timestamp,
		LastSeen:    timestamp,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		if errors.Is(err, issues.ErrExists) {
			// Lost a first-event race; fold into the winner's row.
			winner, ferr := s.groups.FindByFingerprint(ctx, projectID, fingerprint)
			if ferr != nil {
				return nil, false, fmt.Errorf("find group after create conflict: %w", ferr)
			}
			return s.recordSeen(ctx, winner, timestamp)
		}
		return nil, false, fmt.Errorf("create group: %w", err)
	}
	return group, true, nil
}

func (s *IngestService) recordSeen(ctx context.Context, group *issues.Group, timestamp time.Time) (*issues.Group, bool, error) {
	if err := s.groups.RecordSeen(ctx, group.ID, timestamp); err != nil {
		return nil, false, fmt.Errorf("record seen: %w", err)
	}
	group.TimesSeen++
	if timestamp.After(group.LastSeen) {
		group.LastSeen = timestamp
	}
	return group, false, nil
}

func (s *IngestService) storeEvent(ctx context.Context, projectID, groupID string, input EventInput, timestamp, received time.Time) (*Event, error) {
	ulid, err := ids.NewULID()
	if err != nil {
		return nil, err
	}
	event := &Event{
		ID:        ids.NewUUID(),
		ULID:      ulid,
		GroupID:   groupID,
		ProjectID: projectID,
		Message:   input.Message,
		Platform:  input.Platform,
		Timestamp: timestamp,
		Received:  received,
	}
	if err := s.events.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (s *IngestService) recordTags(ctx context.Context, projectID, groupID string, input EventInput, timestamp time.Time) error {
	normalized := NormalizeTags(input)
	for key, value := range normalized {
		if err := s.tags.UpsertValue(ctx, groupID, key, value, timestamp); err != nil {
			return fmt.Errorf("upsert tag %s: %w", key, err)
		}
	}
	if value := input.User.TagValue(); value != "" {
		if err := s.tags.UpsertEventUser(ctx, projectID, input.User.EventUser(), value, timestamp); err != nil {
			return fmt.Errorf("upsert event user: %w", err)
		}
	}
	if s.cache != nil {
		for key := range normalized {
			if err := s.cache.InvalidateTagValues(ctx, groupID, key); err != nil {
				// Stale entries age out by TTL.
				s.logger.Warn().Err(err).Str("key", key).Msg("invalidate tag value cache")
			}
		}
	}
	return nil
}
