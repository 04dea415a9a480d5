package queryset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSelectBasic(t *testing.T) {
	sql, args, err := Select("group_tag_values").
		Values("value", "times_seen").
		Where("group_id = ?", "g1").
		Where("key = ?", "browser").
		OrderBy("last_seen DESC").
		Limit(100).
		SQL()
	require.NoError(t, err)
	require.Equal(t,
		"SELECT value, times_seen FROM group_tag_values WHERE group_id = $1 AND key = $2 ORDER BY last_seen DESC LIMIT 100",
		sql)
	require.Equal(t, []any{"g1", "browser"}, args)
}

func TestSelectOffset(t *testing.T) {
	sql, _, err := Select("groups").
		Values("id").
		OrderBy("last_seen DESC").
		Limit(10).
		Offset(20).
		SQL()
	require.NoError(t, err)
	require.Contains(t, sql, "LIMIT 10 OFFSET 20")
}

func TestDeferIsRestricted(t *testing.T) {
	_, _, err := Select("groups").
		Values("id").
		Defer("message").
		SQL()
	require.ErrorIs(t, err, ErrRestricted)
}

func TestOnlyIsRestricted(t *testing.T) {
	_, _, err := Select("groups").
		Only("id").
		SQL()
	require.ErrorIs(t, err, ErrRestricted)
}

func TestRestrictedErrorSticks(t *testing.T) {
	// The first restriction wins even when further clauses are valid.
	_, _, err := Select("groups").
		Defer("message").
		Values("id").
		Where("id = ?", "g1").
		SQL()
	require.ErrorIs(t, err, ErrRestricted)
}

func TestValuesRequired(t *testing.T) {
	_, _, err := Select("groups").Where("id = ?", "g1").SQL()
	require.Error(t, err)
	require.Contains(t, err.Error(), "Values")
}

func TestWherePlaceholderMismatch(t *testing.T) {
	_, _, err := Select("groups").
		Values("id").
		Where("id = ? AND project_id = ?", "g1").
		SQL()
	require.Error(t, err)
}
