// Package tags serves per-issue tag value aggregates: for each (group,
// key, value) triple a running count and first/last seen window. The
// synthetic "user" key additionally carries the identity captured from
// the event's user context.
package tags

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("tag key not found")
	ErrInvalidKey = errors.New("invalid tag key")
)

// Sort orders value listings.
type Sort string

const (
	// SortDate is the default: most recently seen first.
	SortDate Sort = "date"
	// SortCount orders by descending occurrence count.
	SortCount Sort = "count"
)

// ParseSort maps the ?sort query parameter onto a Sort.
func ParseSort(raw string) (Sort, error) {
	switch raw {
	case "", "date":
		return SortDate, nil
	case "count":
		return SortCount, nil
	default:
		return "", fmt.Errorf("unsupported sort %q", raw)
	}
}

// EventUser is the identity recorded for a "user" tag value.
type EventUser struct {
	Ident     string
	Username  string
	Email     string
	IPAddress string
}

// GroupTagValue is one aggregated value row for a (group, key) pair.
type GroupTagValue struct {
	Key       string
	Value     string
	TimesSeen int64
	FirstSeen time.Time
	LastSeen  time.Time
	// User is populated for the synthetic "user" key only.
	User *EventUser
}

type Repository interface {
	// ListValues returns aggregates for a (group, key) pair in the
	// given order. For key "user" the rows carry identity details.
	ListValues(ctx context.Context, groupID, key string, sort Sort, limit int) ([]GroupTagValue, error)
	// UpsertValue folds one observation into the aggregate.
	UpsertValue(ctx context.Context, groupID, key, value string, seenAt time.Time) error
	// UpsertEventUser records identity details for a user tag value.
	UpsertEventUser(ctx context.Context, projectID string, user EventUser, tagValue string, seenAt time.Time) error
	// DeleteValuesForGroups prunes aggregates whose group is gone.
	DeleteValuesForGroups(ctx context.Context, groupIDs []string) (int64, error)
}

const DefaultListLimit = 100

// ValueCache is the optional hot cache in front of ListValues. A nil
// implementation behaves as an always-miss cache.
type ValueCache interface {
	GetTagValues(ctx context.Context, groupID, key string, sort Sort) ([]GroupTagValue, error)
	SetTagValues(ctx context.Context, groupID, key string, sort Sort, values []GroupTagValue) error
}

type Service struct {
	repo  Repository
	cache ValueCache
}

func NewService(repo Repository, cache ValueCache) *Service {
	return &Service{repo: repo, cache: cache}
}

func (s *Service) ListValues(ctx context.Context, groupID, key string, sort Sort) ([]GroupTagValue, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	if s.cache != nil {
		if cached, err := s.cache.GetTagValues(ctx, groupID, key, sort); err == nil && cached != nil {
			return cached, nil
		}
	}

	values, err := s.repo.ListValues(ctx, groupID, key, sort, DefaultListLimit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// Cache errors are not worth failing the read for.
		_ = s.cache.SetTagValues(ctx, groupID, key, sort, values)
	}
	return values, nil
}
