package tags

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	gotKey  string
	gotSort Sort
	rows    []GroupTagValue
}

func (s *stubRepo) ListValues(_ context.Context, _, key string, sort Sort, _ int) ([]GroupTagValue, error) {
	s.gotKey = key
	s.gotSort = sort
	return s.rows, nil
}

func (s *stubRepo) UpsertValue(context.Context, string, string, string, time.Time) error {
	return nil
}

func (s *stubRepo) UpsertEventUser(context.Context, string, EventUser, string, time.Time) error {
	return nil
}

func (s *stubRepo) DeleteValuesForGroups(context.Context, []string) (int64, error) {
	return 0, nil
}

func TestParseSort(t *testing.T) {
	sort, err := ParseSort("")
	require.NoError(t, err)
	require.Equal(t, SortDate, sort)

	sort, err = ParseSort("date")
	require.NoError(t, err)
	require.Equal(t, SortDate, sort)

	sort, err = ParseSort("count")
	require.NoError(t, err)
	require.Equal(t, SortCount, sort)

	_, err = ParseSort("severity")
	require.Error(t, err)
}

func TestListValuesRejectsEmptyKey(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)
	_, err := svc.ListValues(context.Background(), "g1", "", SortDate)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestListValuesPassesThrough(t *testing.T) {
	repo := &stubRepo{rows: []GroupTagValue{{Key: "browser", Value: "Firefox", TimesSeen: 3}}}
	svc := NewService(repo, nil)

	rows, err := svc.ListValues(context.Background(), "g1", "browser", SortCount)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "browser", repo.gotKey)
	require.Equal(t, SortCount, repo.gotSort)
}

type memCache struct {
	entries map[string][]GroupTagValue
	hits    int
}

func (m *memCache) GetTagValues(_ context.Context, groupID, key string, sort Sort) ([]GroupTagValue, error) {
	if values, ok := m.entries[groupID+key+string(sort)]; ok {
		m.hits++
		return values, nil
	}
	return nil, nil
}

func (m *memCache) SetTagValues(_ context.Context, groupID, key string, sort Sort, values []GroupTagValue) error {
	if m.entries == nil {
		m.entries = make(map[string][]GroupTagValue)
	}
	m.entries[groupID+key+string(sort)] = values
	return nil
}

func TestListValuesCacheRoundTrip(t *testing.T) {
	repo := &stubRepo{rows: []GroupTagValue{{Key: "browser", Value: "Firefox"}}}
	cache := &memCache{}
	svc := NewService(repo, cache)

	_, err := svc.ListValues(context.Background(), "g1", "browser", SortDate)
	require.NoError(t, err)
	require.Zero(t, cache.hits)

	rows, err := svc.ListValues(context.Background(), "g1", "browser", SortDate)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, cache.hits)
}
