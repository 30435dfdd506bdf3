package memory

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanView(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	creator := uuid.New()
	stranger := uuid.New()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	base := func(privacy PrivacyLevel) *Memory {
		return &Memory{ID: uuid.New(), CreatorID: creator, PrivacyLevel: privacy, IsActive: true}
	}

	tests := []struct {
		name   string
		memory *Memory
		viewer *uuid.UUID
		want   bool
	}{
		{"public to anonymous", base(PrivacyPublic), nil, true},
		{"public to stranger", base(PrivacyPublic), &stranger, true},
		{"private to creator", base(PrivacyPrivate), &creator, true},
		{"private to stranger", base(PrivacyPrivate), &stranger, false},
		{"private to anonymous", base(PrivacyPrivate), nil, false},
		{"friends to stranger", base(PrivacyFriends), &stranger, false},
		{"friends to creator", base(PrivacyFriends), &creator, true},
		{"inactive to creator", func() *Memory { m := base(PrivacyPublic); m.IsActive = false; return m }(), &creator, false},
		{"expired public", func() *Memory { m := base(PrivacyPublic); m.ExpirationDate = &past; return m }(), &stranger, false},
		{"not yet expired", func() *Memory { m := base(PrivacyPublic); m.ExpirationDate = &future; return m }(), &stranger, true},
		{"nil memory", nil, &creator, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanView(tt.memory, tt.viewer, now))
		})
	}
}

func TestContentTypeAndPrivacyValid(t *testing.T) {
	assert.True(t, ContentPhoto.Valid())
	assert.True(t, ContentText.Valid())
	assert.False(t, ContentType("gif").Valid())

	assert.True(t, PrivacyFriends.Valid())
	assert.False(t, PrivacyLevel("secret").Valid())
}

func TestEngagement(t *testing.T) {
	m := Memory{LikesCount: 3, CommentsCount: 4}
	assert.Equal(t, int64(7), m.Engagement())
}
