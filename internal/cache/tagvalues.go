package cache

import (
	"context"
	"encoding/json"

	"github.com/faultline-hq/faultline/internal/domain/tags"
)

// tagValuesPrefix is the Redis key prefix for tag value listings.
const tagValuesPrefix = "tagvalues:"

func tagValuesKey(groupID, key string, sort tags.Sort) string {
	return tagValuesPrefix + groupID + ":" + key + ":" + string(sort)
}

// GetTagValues returns a cached listing, or nil on a miss. Corrupt
// entries count as misses.
func (c *Cache) GetTagValues(ctx context.Context, groupID, key string, sort tags.Sort) ([]tags.GroupTagValue, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, tagValuesKey(groupID, key, sort)).Bytes()
	if err != nil {
		return nil, nil
	}

	var values []tags.GroupTagValue
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, nil
	}
	return values, nil
}

// SetTagValues caches a listing for the configured TTL.
func (c *Cache) SetTagValues(ctx context.Context, groupID, key string, sort tags.Sort, values []tags.GroupTagValue) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tagValuesKey(groupID, key, sort), data, c.ttl).Err()
}

// InvalidateTagValues drops all cached listings for a (group, key)
// pair, one per sort order.
func (c *Cache) InvalidateTagValues(ctx context.Context, groupID, key string) error {
	if c == nil {
		return nil
	}

	keys := []string{
		tagValuesKey(groupID, key, tags.SortDate),
		tagValuesKey(groupID, key, tags.SortCount),
	}
	return c.client.Del(ctx, keys...).Err()
}
