package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusTag is one member of the canonical status vocabulary.
type StatusTag string

// Canonical status tags, in canonical order.
const (
	TagChecking            StatusTag = "checking"
	TagError               StatusTag = "error"
	TagPaused              StatusTag = "paused"
	TagStopped             StatusTag = "stopped"
	TagDownloading         StatusTag = "downloading"
	TagSeeding             StatusTag = "seeding"
	TagActive              StatusTag = "active"
	TagInactive            StatusTag = "inactive"
	TagComplete            StatusTag = "complete"
	TagActivelyDownloading StatusTag = "activelyDownloading"
	TagActivelyUploading   StatusTag = "activelyUploading"
)

// AllTags lists the vocabulary in canonical order.
var AllTags = []StatusTag{
	TagChecking,
	TagError,
	TagPaused,
	TagStopped,
	TagDownloading,
	TagSeeding,
	TagActive,
	TagInactive,
	TagComplete,
	TagActivelyDownloading,
	TagActivelyUploading,
}

// StatusSet is a set of canonical tags. Two sets are equal iff they compare ==.
type StatusSet uint16

func tagBit(tag StatusTag) StatusSet {
	for i, t := range AllTags {
		if t == tag {
			return 1 << uint(i)
		}
	}
	return 0
}

// NewStatusSet builds a set from tags. Unknown tags are ignored.
func NewStatusSet(tags ...StatusTag) StatusSet {
	var s StatusSet
	for _, t := range tags {
		s |= tagBit(t)
	}
	return s
}

// ParseStatusTag resolves a tag name.
func ParseStatusTag(name string) (StatusTag, bool) {
	for _, t := range AllTags {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// With returns s plus tags.
func (s StatusSet) With(tags ...StatusTag) StatusSet {
	return s | NewStatusSet(tags...)
}

// Without returns s minus tags.
func (s StatusSet) Without(tags ...StatusTag) StatusSet {
	return s &^ NewStatusSet(tags...)
}

// Has reports whether tag is in s.
func (s StatusSet) Has(tag StatusTag) bool {
	b := tagBit(tag)
	return b != 0 && s&b != 0
}

// Empty reports whether s has no tags.
func (s StatusSet) Empty() bool {
	return s == 0
}

// Len returns the number of tags in s.
func (s StatusSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Tags returns the members of s in canonical order.
func (s StatusSet) Tags() []StatusTag {
	tags := make([]StatusTag, 0, s.Len())
	for i, t := range AllTags {
		if s&(1<<uint(i)) != 0 {
			tags = append(tags, t)
		}
	}
	return tags
}

// String joins the tags with commas.
func (s StatusSet) String() string {
	tags := s.Tags()
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

// WithActivity adds the rate-derived tags: active or inactive, plus
// activelyDownloading/activelyUploading for non-zero rates.
func (s StatusSet) WithActivity(upRate, downRate int64) StatusSet {
	s = s.Without(TagActive, TagInactive, TagActivelyDownloading, TagActivelyUploading)
	if upRate > 0 || downRate > 0 {
		s = s.With(TagActive)
	} else {
		s = s.With(TagInactive)
	}
	if downRate > 0 {
		s = s.With(TagActivelyDownloading)
	}
	if upRate > 0 {
		s = s.With(TagActivelyUploading)
	}
	return s
}

// Normalize enforces the set invariants: seeding implies complete, active
// excludes inactive, and the set is never empty.
func (s StatusSet) Normalize() StatusSet {
	if s.Has(TagSeeding) {
		s = s.With(TagComplete)
	}
	if s.Has(TagActive) {
		s = s.Without(TagInactive)
	}
	if s.Empty() {
		s = s.With(TagError)
	}
	return s
}

// MarshalJSON encodes the set as an array of tag names in canonical order.
func (s StatusSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Tags())
}

// UnmarshalJSON decodes an array of tag names.
func (s *StatusSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var set StatusSet
	for _, n := range names {
		tag, ok := ParseStatusTag(n)
		if !ok {
			return fmt.Errorf("unknown status tag %q", n)
		}
		set = set.With(tag)
	}
	*s = set
	return nil
}
