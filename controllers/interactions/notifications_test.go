package interactions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-lane-backend/models/interaction"
	"memory-lane-backend/services/testdb"
)

func TestNotificationsLifecycle(t *testing.T) {
	db := testdb.Open(t)
	owner := testdb.CreateUser(t, db, "owner")
	other := testdb.CreateUser(t, db, "other")
	auth := stubAuth{user: &owner.ID}

	var mine []interaction.Notification
	for _, msg := range []string{"first", "second", "third"} {
		n := interaction.Notification{UserID: owner.ID, Type: interaction.NotifyLike, Message: msg}
		require.NoError(t, db.Create(&n).Error)
		mine = append(mine, n)
	}
	foreign := interaction.Notification{UserID: other.ID, Type: interaction.NotifyLike, Message: "not yours"}
	require.NoError(t, db.Create(&foreign).Error)

	rec := httptest.NewRecorder()
	GetNotifications(rec, httptest.NewRequest(http.MethodGet, "/api/notifications?per_page=2", nil), db, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Notifications []interaction.Notification `json:"notifications"`
		UnreadCount   int64                      `json:"unread_count"`
		Pagination    struct {
			Total   int64 `json:"total"`
			HasNext bool  `json:"has_next"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, int64(3), list.UnreadCount)
	assert.Equal(t, int64(3), list.Pagination.Total)
	assert.True(t, list.Pagination.HasNext)

	withNotification := func(method string, id uint) *http.Request {
		r := httptest.NewRequest(method, "/", nil)
		return mux.SetURLVars(r, map[string]string{"id": strconv.FormatUint(uint64(id), 10)})
	}

	rec = httptest.NewRecorder()
	MarkNotificationAsRead(rec, withNotification(http.MethodPut, mine[0].ID), db, auth)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	MarkNotificationAsRead(rec, withNotification(http.MethodPut, foreign.ID), db, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	GetNotifications(rec, httptest.NewRequest(http.MethodGet, "/api/notifications?unread_only=true", nil), db, auth)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Notifications, 2)
	assert.Equal(t, int64(2), list.UnreadCount)

	rec = httptest.NewRecorder()
	MarkAllNotificationsAsRead(rec, httptest.NewRequest(http.MethodPut, "/", nil), db, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, int64(2), updated.Updated)

	rec = httptest.NewRecorder()
	DeleteNotification(rec, withNotification(http.MethodDelete, mine[1].ID), db, auth)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	DeleteNotification(rec, withNotification(http.MethodDelete, mine[1].ID), db, auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var remaining int64
	require.NoError(t, db.Model(&interaction.Notification{}).Where("user_id = ?", other.ID).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}

func TestNotificationBadID(t *testing.T) {
	user := uuid.New()
	r := mux.SetURLVars(httptest.NewRequest(http.MethodPut, "/", nil), map[string]string{"id": "abc"})
	rec := httptest.NewRecorder()
	MarkNotificationAsRead(rec, r, nil, stubAuth{user: &user})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
