package memorystore

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/apperr"
)

const (
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxTags              = 10
	MinTagLength         = 2
	MaxTagLength         = 30
	MaxExpirationHours   = 8760
	MinQueryLength       = 2
	MaxQueryLength       = 100
)

var tagPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < MinTitleLength || n > MaxTitleLength {
		return "", apperr.Validation("title", fmt.Sprintf("must be between %d and %d characters", MinTitleLength, MaxTitleLength))
	}
	return title, nil
}

func validateDescription(desc string) (string, error) {
	desc = strings.TrimSpace(desc)
	if utf8.RuneCountInString(desc) > MaxDescriptionLength {
		return "", apperr.Validation("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	return desc, nil
}

// NormalizeTags приводит теги к нижнему регистру и убирает дубликаты, сохраняя порядок
func NormalizeTags(tags []string) ([]string, error) {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		n := utf8.RuneCountInString(tag)
		if n < MinTagLength || n > MaxTagLength {
			return nil, apperr.Validation("category_tags", fmt.Sprintf("each tag must be between %d and %d characters", MinTagLength, MaxTagLength))
		}
		if !tagPattern.MatchString(tag) {
			return nil, apperr.Validation("category_tags", "tags can only contain letters, numbers, underscores and hyphens")
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	if len(out) > MaxTags {
		return nil, apperr.Validation("category_tags", fmt.Sprintf("cannot have more than %d tags", MaxTags))
	}
	return out, nil
}

// expirationFrom: 0 снимает срок, 1..8760 часов от now
func expirationFrom(hours int, now time.Time) (*time.Time, error) {
	if hours == 0 {
		return nil, nil
	}
	if hours < 1 || hours > MaxExpirationHours {
		return nil, apperr.Validation("expiration_hours", fmt.Sprintf("must be between 1 and %d", MaxExpirationHours))
	}
	at := now.Add(time.Duration(hours) * time.Hour)
	return &at, nil
}

func validateContent(kind memory.ContentType, url *string, text string) (*string, string, error) {
	if !kind.Valid() {
		return nil, "", apperr.Validation("content_type", "must be one of photo, audio, video, text")
	}
	text = strings.TrimSpace(text)
	if url != nil {
		trimmed := strings.TrimSpace(*url)
		url = &trimmed
		if trimmed == "" {
			url = nil
		}
	}
	if kind == memory.ContentText {
		if text == "" {
			return nil, "", apperr.Validation("content_text", "required for text memories")
		}
		return url, text, nil
	}
	if url == nil {
		return nil, "", apperr.Validation("content_url", fmt.Sprintf("required for %s memories", kind))
	}
	return url, text, nil
}

func validateQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	n := utf8.RuneCountInString(q)
	if n < MinQueryLength || n > MaxQueryLength {
		return "", apperr.Validation("q", fmt.Sprintf("must be between %d and %d characters", MinQueryLength, MaxQueryLength))
	}
	return q, nil
}
