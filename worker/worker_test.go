package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/discovery"
	"memory-lane-backend/services/geo"
	"memory-lane-backend/services/notify"
	"memory-lane-backend/services/pagination"
	"memory-lane-backend/services/testdb"
)

type stubFinder struct {
	pages   [][]uuid.UUID
	err     error
	queries []discovery.NearbyUsersQuery
}

func (f *stubFinder) NearbyUsers(_ context.Context, q discovery.NearbyUsersQuery) (discovery.NearbyUsersResult, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return discovery.NearbyUsersResult{}, f.err
	}
	var res discovery.NearbyUsersResult
	if i := q.Page.Page - 1; i < len(f.pages) {
		for _, id := range f.pages[i] {
			res.Users = append(res.Users, discovery.NearbyUser{PublicProfile: users.PublicProfile{ID: id}})
		}
	}
	res.Pagination = pagination.Meta{Page: q.Page.Page, HasNext: q.Page.Page < len(f.pages)}
	return res, nil
}

type stubCleaner struct {
	calls int
	err   error
}

func (c *stubCleaner) CleanupExpired(context.Context) (int64, error) {
	c.calls++
	return 2, c.err
}

func TestHandleNotificationValidation(t *testing.T) {
	w := New(nil, &stubFinder{}, &stubCleaner{}, nil, zap.NewNop(), Options{})

	_, err := w.HandleNotification(context.Background(), notify.NotificationJob{Type: "like"})
	assert.Equal(t, "recipient_id", apperr.FieldOf(err))

	_, err = w.HandleNotification(context.Background(), notify.NotificationJob{RecipientID: uuid.New(), Type: "poke"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "type", apperr.FieldOf(err))
}

func TestHandleNotificationSkipsSelf(t *testing.T) {
	rec := &notify.Recorder{}
	w := New(nil, &stubFinder{}, &stubCleaner{}, rec, zap.NewNop(), Options{})
	self := uuid.New()

	n, err := w.HandleNotification(context.Background(), notify.NotificationJob{
		RecipientID: self,
		ActorID:     &self,
		Type:        string(interaction.NotifyLike),
	})
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, rec.UserEvents)
}

func TestHandleProximityFinderError(t *testing.T) {
	boom := errors.New("db down")
	w := New(nil, &stubFinder{err: boom}, &stubCleaner{}, nil, zap.NewNop(), Options{ProximityRadius: 1000})

	n, err := w.HandleProximity(context.Background(), notify.ProximityJob{MemoryID: uuid.New(), CreatorID: uuid.New()})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
}

func TestHandleProximityQuery(t *testing.T) {
	finder := &stubFinder{}
	w := New(nil, finder, &stubCleaner{}, nil, zap.NewNop(), Options{ProximityRadius: 750})
	creator := uuid.New()
	loc := geo.Point{Latitude: 48.8584, Longitude: 2.2945}

	n, err := w.HandleProximity(context.Background(), notify.ProximityJob{MemoryID: uuid.New(), CreatorID: creator, Location: loc})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, finder.queries, 1)
	q := finder.queries[0]
	require.NotNil(t, q.Viewer)
	assert.Equal(t, creator, *q.Viewer)
	assert.Equal(t, loc, q.Point)
	require.NotNil(t, q.Radius)
	assert.Equal(t, 750.0, *q.Radius)
	assert.True(t, q.RequireLocationSharing)
	assert.Equal(t, proximityPageSize, q.Page.PerPage)
}

func TestHandleProximityDefaultRadius(t *testing.T) {
	finder := &stubFinder{}
	w := New(nil, finder, &stubCleaner{}, nil, zap.NewNop(), Options{})

	_, err := w.HandleProximity(context.Background(), notify.ProximityJob{MemoryID: uuid.New(), CreatorID: uuid.New()})
	require.NoError(t, err)
	require.Len(t, finder.queries, 1)
	assert.Nil(t, finder.queries[0].Radius)
}

func TestCleanupOnce(t *testing.T) {
	c := &stubCleaner{}
	w := New(nil, &stubFinder{}, c, nil, zap.NewNop(), Options{})
	w.CleanupOnce(context.Background())

	c.err = errors.New("timeout")
	w.CleanupOnce(context.Background())
	assert.Equal(t, 2, c.calls)
}

func TestHandleNotificationPersists(t *testing.T) {
	db := testdb.Open(t)
	recipient := testdb.CreateUser(t, db, "recipient")
	actor := testdb.CreateUser(t, db, "actor")

	rec := &notify.Recorder{}
	w := New(db, &stubFinder{}, &stubCleaner{}, rec, zap.NewNop(), Options{})

	n, err := w.HandleNotification(context.Background(), notify.NotificationJob{
		RecipientID: recipient.ID,
		ActorID:     &actor.ID,
		Type:        string(interaction.NotifyComment),
		Message:     "actor commented on your memory",
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.NotZero(t, n.ID)

	var stored interaction.Notification
	require.NoError(t, db.First(&stored, n.ID).Error)
	assert.Equal(t, recipient.ID, stored.UserID)
	assert.False(t, stored.IsRead)

	require.Len(t, rec.UserEvents, 1)
	assert.Equal(t, recipient.ID, rec.UserEvents[0].UserID)
	assert.Equal(t, notify.EventNotification, rec.UserEvents[0].Type)
}

func TestHandleProximityPagesThroughUsers(t *testing.T) {
	db := testdb.Open(t)
	creator := testdb.CreateUser(t, db, "creator")
	first := testdb.CreateUser(t, db, "neighbour1")
	second := testdb.CreateUser(t, db, "neighbour2")

	finder := &stubFinder{pages: [][]uuid.UUID{{first.ID}, {second.ID, creator.ID}}}
	rec := &notify.Recorder{}
	w := New(db, finder, &stubCleaner{}, rec, zap.NewNop(), Options{ProximityRadius: 1000})

	n, err := w.HandleProximity(context.Background(), notify.ProximityJob{
		MemoryID:  uuid.New(),
		CreatorID: creator.ID,
		Title:     "Sunset",
	})
	require.NoError(t, err)
	// создатель сам себя не уведомляет
	assert.Equal(t, 2, n)
	assert.Len(t, finder.queries, 2)

	var count int64
	require.NoError(t, db.Model(&interaction.Notification{}).Where("type = ?", interaction.NotifyNearbyMemory).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
