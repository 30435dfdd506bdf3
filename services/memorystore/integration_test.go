package memorystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/notify"
	"memory-lane-backend/services/pagination"
	"memory-lane-backend/services/testdb"
)

func textInput(title string, privacy memory.PrivacyLevel) CreateInput {
	return CreateInput{
		Latitude:     40.7128,
		Longitude:    -74.0060,
		ContentType:  memory.ContentText,
		ContentText:  "it happened here",
		Title:        title,
		PrivacyLevel: privacy,
		CategoryTags: []string{"City", "city", "night"},
	}
}

func TestCreateCountsAndPublishes(t *testing.T) {
	db := testdb.Open(t)
	rec := &notify.Recorder{}
	svc := New(db, rec, zap.NewNop())
	ctx := context.Background()

	u := testdb.CreateUser(t, db, "creator")

	m, err := svc.Create(ctx, u.ID, textInput("Rooftop", memory.PrivacyPublic))
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "night"}, []string(m.CategoryTags))

	_, err = svc.Create(ctx, u.ID, textInput("Diary", memory.PrivacyPrivate))
	require.NoError(t, err)

	_, err = svc.Create(ctx, u.ID, CreateInput{Latitude: 1, Longitude: 1, ContentType: memory.ContentPhoto, Title: "No url"})
	assert.Equal(t, "content_url", apperr.FieldOf(err))

	var fresh users.User
	require.NoError(t, db.First(&fresh, "id = ?", u.ID).Error)
	assert.Equal(t, int64(2), fresh.MemoriesCount)

	events, _ := rec.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventNewMemoryNearby, events[0].Type)
	assert.Len(t, rec.Proximity, 1)
}

func TestGetViewsAndAccess(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "getter_owner")
	viewer := testdb.CreateUser(t, db, "getter_viewer")

	pub, err := svc.Create(ctx, owner.ID, textInput("Open door", memory.PrivacyPublic))
	require.NoError(t, err)
	priv, err := svc.Create(ctx, owner.ID, textInput("Closed door", memory.PrivacyPrivate))
	require.NoError(t, err)

	d, err := svc.Get(ctx, &viewer.ID, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.ViewsCount)
	require.NotNil(t, d.Creator)
	assert.Empty(t, d.Creator.Email)

	_, err = svc.Get(ctx, &viewer.ID, pub.ID)
	require.NoError(t, err)
	d, err = svc.Get(ctx, &owner.ID, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.ViewsCount)

	var views int64
	db.Model(&interaction.Interaction{}).Where("memory_id = ? AND interaction_type = ?", pub.ID, interaction.TypeView).Count(&views)
	assert.Equal(t, int64(1), views)

	_, err = svc.Get(ctx, &viewer.ID, priv.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, db.Model(&memory.Memory{}).Where("id = ?", pub.ID).
		Update("expiration_date", time.Now().UTC().Add(-time.Hour)).Error)
	_, err = svc.Get(ctx, &viewer.ID, pub.ID)
	assert.Equal(t, apperr.KindGone, apperr.KindOf(err))

	_, err = svc.Get(ctx, nil, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateAndDeleteByCreatorOnly(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "editor")
	other := testdb.CreateUser(t, db, "stranger")
	m, err := svc.Create(ctx, owner.ID, textInput("Before", memory.PrivacyPublic))
	require.NoError(t, err)

	title := "After"
	_, err = svc.Update(ctx, other.ID, m.ID, UpdateInput{Title: &title})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	hours := 48
	updated, err := svc.Update(ctx, owner.ID, m.ID, UpdateInput{Title: &title, ExpirationHours: &hours})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.Title)
	require.NotNil(t, updated.ExpirationDate)

	zero := 0
	updated, err = svc.Update(ctx, owner.ID, m.ID, UpdateInput{ExpirationHours: &zero})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpirationDate)

	tagged, err := svc.AddTags(ctx, owner.ID, m.ID, []string{"Rain"})
	require.NoError(t, err)
	assert.Equal(t, []string{"city", "night", "rain"}, []string(tagged.CategoryTags))

	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(svc.Delete(ctx, other.ID, m.ID)))
	require.NoError(t, svc.Delete(ctx, owner.ID, m.ID))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(svc.Delete(ctx, owner.ID, m.ID)))

	var fresh users.User
	require.NoError(t, db.First(&fresh, "id = ?", owner.ID).Error)
	assert.Equal(t, int64(0), fresh.MemoriesCount)
}

func TestListings(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "lister")
	viewer := testdb.CreateUser(t, db, "reader")
	_, err := svc.Create(ctx, owner.ID, textInput("Harbor lights", memory.PrivacyPublic))
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, textInput("Harbor secret", memory.PrivacyPrivate))
	require.NoError(t, err)

	mine, err := svc.ByUser(ctx, &owner.ID, owner.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, mine.Memories, 2)

	theirs, err := svc.ByUser(ctx, &viewer.ID, owner.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, theirs.Memories, 1)

	feed, err := svc.Feed(ctx, FeedQuery{Viewer: &viewer.ID})
	require.NoError(t, err)
	require.Len(t, feed.Memories, 1)
	assert.Equal(t, "Harbor lights", feed.Memories[0].Title)

	_, err = svc.Feed(ctx, FeedQuery{Sort: "random"})
	assert.Equal(t, "sort", apperr.FieldOf(err))

	found, err := svc.Search(ctx, SearchQuery{Viewer: &viewer.ID, Q: "harbor"})
	require.NoError(t, err)
	assert.Len(t, found.Memories, 1)
	assert.Equal(t, "harbor", found.Query)

	found, err = svc.Search(ctx, SearchQuery{Viewer: &owner.ID, Q: "harbor", Tags: []string{"night"}})
	require.NoError(t, err)
	assert.Len(t, found.Memories, 2)
}

func TestCleanupAndRefresh(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "janitor")
	m, err := svc.Create(ctx, owner.ID, textInput("Ephemeral", memory.PrivacyPublic))
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, textInput("Forever", memory.PrivacyPublic))
	require.NoError(t, err)
	require.NoError(t, db.Model(&memory.Memory{}).Where("id = ?", m.ID).
		Update("expiration_date", time.Now().UTC().Add(-time.Minute)).Error)

	n, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, db.Model(&users.User{}).Where("id = ?", owner.ID).Update("memories_count", 42).Error)
	stats, err := svc.RefreshUserStats(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.MemoriesCount)
}

func TestGetLogsHasLikedFailure(t *testing.T) {
	db := testdb.Open(t)
	core, logs := observer.New(zap.WarnLevel)
	svc := New(db, notify.Nop{}, zap.New(core))
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "liked_owner")
	m, err := svc.Create(ctx, owner.ID, textInput("Corner cafe", memory.PrivacyPublic))
	require.NoError(t, err)

	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("fail_interactions", func(tx *gorm.DB) {
		if tx.Statement.Table == "interactions" {
			_ = tx.AddError(errors.New("interactions unavailable"))
		}
	}))

	d, err := svc.Get(ctx, &owner.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, d.HasLiked)

	entries := logs.FilterMessage("has_liked lookup failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, m.ID.String(), entries[0].ContextMap()["memory_id"])
}
