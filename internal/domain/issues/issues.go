// Package issues owns the issue ("group") model: the aggregation bucket
// that error events are folded into by fingerprint.
package issues

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("issue not found")
	// ErrExists is returned by Create when another writer already
	// claimed the (project, fingerprint) pair.
	ErrExists = errors.New("issue already exists")
)

type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusResolved   Status = "resolved"
	StatusIgnored    Status = "ignored"
)

type Group struct {
	ID          string
	ULID        string
	ProjectID   string
	Fingerprint string
	Title       string
	Platform    string
	Status      Status
	TimesSeen   int64
	FirstSeen   time.Time
	LastSeen    time.Time
}

type Repository interface {
	GetByULID(ctx context.Context, ulid string) (*Group, error)
	FindByFingerprint(ctx context.Context, projectID, fingerprint string) (*Group, error)
	Create(ctx context.Context, group *Group) error
	// RecordSeen bumps times_seen and advances last_seen.
	RecordSeen(ctx context.Context, id string, seenAt time.Time) error
	// DeleteStale removes groups last seen before the cutoff and
	// returns the ids of the deleted rows.
	DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetByULID(ctx context.Context, ulid string) (*Group, error) {
	return s.repo.GetByULID(ctx, ulid)
}
