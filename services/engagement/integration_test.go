package engagement

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/memory"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/notify"
	"memory-lane-backend/services/pagination"
	"memory-lane-backend/services/testdb"
)

func newMemory(t *testing.T, db *gorm.DB, creator uuid.UUID, privacy memory.PrivacyLevel) *memory.Memory {
	t.Helper()
	m := &memory.Memory{
		CreatorID:    creator,
		Latitude:     40.7128,
		Longitude:    -74.0060,
		ContentType:  memory.ContentText,
		ContentText:  "text",
		Title:        "Downtown",
		PrivacyLevel: privacy,
		IsActive:     true,
	}
	require.NoError(t, db.Create(m).Error)
	return m
}

func reload(t *testing.T, db *gorm.DB, id uuid.UUID) memory.Memory {
	t.Helper()
	var m memory.Memory
	require.NoError(t, db.First(&m, "id = ?", id).Error)
	return m
}

func activeLikes(t *testing.T, db *gorm.DB, memoryID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&interaction.Interaction{}).
		Where("memory_id = ? AND interaction_type = ? AND is_active", memoryID, interaction.TypeLike).
		Count(&n).Error)
	return n
}

func TestLikeIsIdempotent(t *testing.T) {
	db := testdb.Open(t)
	rec := &notify.Recorder{}
	svc := New(db, rec, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "like_owner")
	x := testdb.CreateUser(t, db, "like_x")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	res, err := svc.Like(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, int64(1), res.LikesCount)

	res, err = svc.Like(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(1), res.LikesCount)

	assert.Equal(t, int64(1), activeLikes(t, db, m.ID))
	assert.Equal(t, int64(1), reload(t, db, m.ID).LikesCount)

	var actor, creator users.User
	require.NoError(t, db.First(&actor, "id = ?", x.ID).Error)
	require.NoError(t, db.First(&creator, "id = ?", owner.ID).Error)
	assert.Equal(t, int64(1), actor.LikesGivenCount)
	assert.Equal(t, int64(1), creator.LikesReceivedCount)

	_, jobs := rec.Snapshot()
	assert.Len(t, jobs, 1)

	liked, err := svc.HasLiked(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.True(t, liked)
}

func TestUnlikeWithoutLikeIsNoop(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "unlike_owner")
	x := testdb.CreateUser(t, db, "unlike_x")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	res, err := svc.Unlike(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, int64(0), res.LikesCount)
}

func TestLikeUnlikeScenario(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "scenario_owner")
	x := testdb.CreateUser(t, db, "scenario_x")
	y := testdb.CreateUser(t, db, "scenario_y")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	res, err := svc.Like(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LikesCount)

	res, err = svc.Like(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LikesCount)

	res, err = svc.Unlike(ctx, x.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.LikesCount)

	// X снова лайкает, затем параллельно X снимает лайк, а Y ставит
	_, err = svc.Like(ctx, x.ID, m.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.Unlike(ctx, x.ID, m.ID)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.Like(ctx, y.ID, m.ID)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, int64(1), reload(t, db, m.ID).LikesCount)
	assert.Equal(t, int64(1), activeLikes(t, db, m.ID))
}

func TestConcurrentLikesBySameUser(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "race_owner")
	x := testdb.CreateUser(t, db, "race_x")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Like(ctx, x.ID, m.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), reload(t, db, m.ID).LikesCount)
	assert.Equal(t, int64(1), activeLikes(t, db, m.ID))
}

func TestDeleteCommentDecrementsOnce(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "comment_owner")
	c := testdb.CreateUser(t, db, "commenter")
	other := testdb.CreateUser(t, db, "intruder")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	created, err := svc.Comment(ctx, c.ID, m.ID, "great view")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.CommentsCount)

	_, err = svc.Comment(ctx, c.ID, m.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UpdateComment(ctx, other.ID, created.Comment.ID, "hijack")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.DeleteComment(ctx, other.ID, created.Comment.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	updated, err := svc.UpdateComment(ctx, c.ID, created.Comment.ID, "great view!")
	require.NoError(t, err)
	assert.Equal(t, "great view!", updated.Content)
	assert.Equal(t, int64(1), reload(t, db, m.ID).CommentsCount)

	del, err := svc.DeleteComment(ctx, c.ID, created.Comment.ID)
	require.NoError(t, err)
	assert.True(t, del.Deleted)
	assert.Equal(t, int64(0), del.CommentsCount)

	del, err = svc.DeleteComment(ctx, c.ID, created.Comment.ID)
	require.NoError(t, err)
	assert.False(t, del.Deleted)
	assert.Equal(t, int64(0), reload(t, db, m.ID).CommentsCount)

	_, err = svc.DeleteComment(ctx, c.ID, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestInteractionsOnHiddenMemory(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "hidden_owner")
	x := testdb.CreateUser(t, db, "hidden_x")
	private := newMemory(t, db, owner.ID, memory.PrivacyPrivate)

	_, err := svc.Like(ctx, x.ID, private.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Comments(ctx, &x.ID, private.ID, pagination.Params{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = svc.Like(ctx, x.ID, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	res, err := svc.Like(ctx, owner.ID, private.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.LikesCount)
}

func TestReportFlagsMemory(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "report_owner")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	_, err := svc.Report(ctx, owner.ID, m.ID, "spam", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	r1 := testdb.CreateUser(t, db, "reporter1")
	_, err = svc.Report(ctx, r1.ID, m.ID, "bogus", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Report(ctx, r1.ID, m.ID, "spam", "ads everywhere")
	require.NoError(t, err)
	_, err = svc.Report(ctx, r1.ID, m.ID, "spam", "again")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.False(t, reload(t, db, m.ID).IsReported)

	for _, name := range []string{"reporter2", "reporter3"} {
		u := testdb.CreateUser(t, db, name)
		_, err = svc.Report(ctx, u.ID, m.ID, "harassment", "")
		require.NoError(t, err)
	}
	assert.True(t, reload(t, db, m.ID).IsReported)
}

func TestListingNewestFirst(t *testing.T) {
	db := testdb.Open(t)
	svc := New(db, notify.Nop{}, zap.NewNop())
	ctx := context.Background()

	owner := testdb.CreateUser(t, db, "list_owner")
	c := testdb.CreateUser(t, db, "list_commenter")
	m := newMemory(t, db, owner.ID, memory.PrivacyPublic)

	for _, text := range []string{"first", "second", "third"} {
		_, err := svc.Comment(ctx, c.ID, m.ID, text)
		require.NoError(t, err)
	}
	_, err := svc.Share(ctx, c.ID, m.ID, "telegram", "look")
	require.NoError(t, err)

	list, err := svc.Comments(ctx, nil, m.ID, pagination.Params{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	assert.Equal(t, "third", list.Items[0].Content)
	assert.Equal(t, "second", list.Items[1].Content)
	assert.Equal(t, int64(3), list.Pagination.Total)
	require.NotNil(t, list.Items[0].User)
	assert.Equal(t, "list_commenter", list.Items[0].User.Username)

	mine, err := svc.UserInteractions(ctx, c.ID, c.ID, interaction.TypeShare, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, "telegram", mine.Items[0].Metadata["platform"])

	_, err = svc.UserInteractions(ctx, owner.ID, c.ID, "", pagination.Params{})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}
