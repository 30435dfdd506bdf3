package interactions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-lane-backend/controllers/authentication"
	"memory-lane-backend/models/interaction"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/engagement"
	"memory-lane-backend/services/pagination"
)

type stubAuth struct{ user *uuid.UUID }

func (s stubAuth) ValidateToken(*http.Request) (*authentication.Claims, error) {
	if s.user == nil {
		return nil, authentication.ErrNoCredential
	}
	return &authentication.Claims{UserID: *s.user}, nil
}

func (s stubAuth) Viewer(*http.Request) (*uuid.UUID, error) { return s.user, nil }

type stubEngagement struct {
	Engagement
	liked        map[uuid.UUID]bool
	sharePlat    string
	reportReason string
	commentsFor  *uuid.UUID
	kind         interaction.Type
}

func (s *stubEngagement) Like(_ context.Context, _, memoryID uuid.UUID) (engagement.LikeResult, error) {
	changed := !s.liked[memoryID]
	s.liked[memoryID] = true
	return engagement.LikeResult{MemoryID: memoryID, Liked: true, Changed: changed, LikesCount: 1}, nil
}

func (s *stubEngagement) Comment(_ context.Context, userID, memoryID uuid.UUID, content string) (engagement.CommentResult, error) {
	if strings.TrimSpace(content) == "" {
		return engagement.CommentResult{}, apperr.Validation("content", "comment cannot be empty")
	}
	return engagement.CommentResult{
		Comment:       interaction.Interaction{ID: uuid.New(), UserID: userID, MemoryID: memoryID},
		CommentsCount: 1,
	}, nil
}

func (s *stubEngagement) Share(_ context.Context, userID, memoryID uuid.UUID, platform, _ string) (*interaction.Interaction, error) {
	s.sharePlat = platform
	return &interaction.Interaction{ID: uuid.New(), UserID: userID, MemoryID: memoryID}, nil
}

func (s *stubEngagement) Report(_ context.Context, userID, memoryID uuid.UUID, reason, _ string) (*interaction.Interaction, error) {
	s.reportReason = reason
	if reason == "again" {
		return nil, apperr.Conflict("memory already reported")
	}
	return &interaction.Interaction{ID: uuid.New(), UserID: userID, MemoryID: memoryID}, nil
}

func (s *stubEngagement) Comments(_ context.Context, viewer *uuid.UUID, memoryID uuid.UUID, _ pagination.Params) (engagement.ListResult, error) {
	s.commentsFor = viewer
	return engagement.ListResult{}, nil
}

func (s *stubEngagement) UserInteractions(_ context.Context, viewer, userID uuid.UUID, kind interaction.Type, _ pagination.Params) (engagement.ListResult, error) {
	s.kind = kind
	if viewer != userID {
		return engagement.ListResult{}, apperr.Forbidden("can only view your own interactions")
	}
	return engagement.ListResult{}, nil
}

func withID(r *http.Request, id uuid.UUID) *http.Request {
	return mux.SetURLVars(r, map[string]string{"id": id.String()})
}

func newStub() *stubEngagement {
	return &stubEngagement{liked: map[uuid.UUID]bool{}}
}

func TestLikeStatusReflectsChange(t *testing.T) {
	user := uuid.New()
	h := New(newStub(), stubAuth{user: &user})
	memoryID := uuid.New()

	rec := httptest.NewRecorder()
	h.Like(rec, withID(httptest.NewRequest(http.MethodPost, "/", nil), memoryID))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.Like(rec, withID(httptest.NewRequest(http.MethodPost, "/", nil), memoryID))
	require.Equal(t, http.StatusOK, rec.Code)

	var res engagement.LikeResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Liked)
	assert.False(t, res.Changed)
}

func TestLikeRequiresAuth(t *testing.T) {
	h := New(newStub(), stubAuth{})
	rec := httptest.NewRecorder()
	h.Like(rec, withID(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateComment(t *testing.T) {
	user := uuid.New()
	h := New(newStub(), stubAuth{user: &user})

	rec := httptest.NewRecorder()
	h.CreateComment(rec, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"  "}`)), uuid.New()))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateComment(rec, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"content":"nice view"}`)), uuid.New()))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestShareWithoutBody(t *testing.T) {
	user := uuid.New()
	svc := newStub()
	h := New(svc, stubAuth{user: &user})

	rec := httptest.NewRecorder()
	h.Share(rec, withID(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, svc.sharePlat)

	rec = httptest.NewRecorder()
	h.Share(rec, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"platform":"twitter"}`)), uuid.New()))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "twitter", svc.sharePlat)
}

func TestReport(t *testing.T) {
	user := uuid.New()
	svc := newStub()
	h := New(svc, stubAuth{user: &user})

	rec := httptest.NewRecorder()
	h.Report(rec, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"spam"}`)), uuid.New()))
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		ReportID uuid.UUID `json:"report_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.ReportID)

	rec = httptest.NewRecorder()
	h.Report(rec, withID(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"reason":"again"}`)), uuid.New()))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCommentsAnonymous(t *testing.T) {
	svc := newStub()
	h := New(svc, stubAuth{})
	rec := httptest.NewRecorder()
	h.Comments(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.commentsFor)
}

func TestUserInteractionsOwnOnly(t *testing.T) {
	user := uuid.New()
	svc := newStub()
	h := New(svc, stubAuth{user: &user})

	rec := httptest.NewRecorder()
	h.UserInteractions(rec, withID(httptest.NewRequest(http.MethodGet, "/?type=like", nil), user))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, interaction.TypeLike, svc.kind)

	rec = httptest.NewRecorder()
	h.UserInteractions(rec, withID(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
