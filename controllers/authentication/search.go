package authentication

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"memory-lane-backend/controllers/respond"
	"memory-lane-backend/models/users"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/pagination"
)

// SearchUsers: поиск по username и display_name
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	viewer, err := h.Viewer(r)
	if err != nil {
		http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if n := utf8.RuneCountInString(q); n < 2 || n > 100 {
		respond.Error(w, apperr.Validation("q", "must be 2-100 characters"))
		return
	}
	params, err := respond.Page(r)
	if err != nil {
		respond.Error(w, err)
		return
	}
	page, err := params.Normalize(20, 50)
	if err != nil {
		respond.Error(w, err)
		return
	}

	pattern := "%" + escapeLike(q) + "%"
	query := func() *gorm.DB {
		return h.db.WithContext(r.Context()).Model(&users.User{}).
			Where("is_active").
			Where("username ILIKE ? OR display_name ILIKE ?", pattern, pattern)
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}
	var found []users.User
	if err := query().Order("username").Offset(page.Offset()).Limit(page.PerPage).Find(&found).Error; err != nil {
		respond.Error(w, apperr.Transient(err))
		return
	}

	profiles := make([]users.PublicProfile, 0, len(found))
	for i := range found {
		profiles = append(profiles, found[i].PublicView(viewer))
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"users":      profiles,
		"query":      q,
		"pagination": pagination.NewMeta(page, total),
	})
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
