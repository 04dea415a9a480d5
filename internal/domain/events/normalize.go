package events

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/faultline-hq/faultline/internal/domain/tags"
)

// UserTagKey is the synthetic tag key derived from the user context.
const UserTagKey = "user"

// maxTitleLen truncates group titles derived from the event message.
const maxTitleLen = 128

// TagValue renders the user context as a tag value. Precedence: id,
// then username, then email, then ip address. An event with none of
// them contributes no user tag.
func (u *UserContext) TagValue() string {
	switch {
	case u == nil:
		return ""
	case u.ID != "":
		return "id:" + u.ID
	case u.Username != "":
		return "username:" + u.Username
	case u.Email != "":
		return "email:" + u.Email
	case u.IPAddress != "":
		return "ip:" + u.IPAddress
	default:
		return ""
	}
}

// EventUser converts the user context into the identity stored next to
// the tag aggregate.
func (u *UserContext) EventUser() tags.EventUser {
	return tags.EventUser{
		Ident:     u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IPAddress: u.IPAddress,
	}
}

// NormalizeTags returns the effective tag set for an event: the
// free-form tags plus the synthetic user tag when a user context is
// present. Caller-supplied "user" tags are overridden.
func NormalizeTags(input EventInput) map[string]string {
	normalized := make(map[string]string, len(input.Tags)+1)
	for key, value := range input.Tags {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		normalized[key] = value
	}
	if value := input.User.TagValue(); value != "" {
		normalized[UserTagKey] = value
	}
	return normalized
}

// Fingerprint computes the grouping hash for an event. Events with the
// same platform and message land in the same issue.
func Fingerprint(platform, message string) string {
	h := sha256.New()
	h.Write([]byte(platform))
	h.Write([]byte{0})
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// GroupTitle derives the issue title from the event message.
func GroupTitle(message string) string {
	title := strings.TrimSpace(message)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > maxTitleLen {
		cut := maxTitleLen
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
