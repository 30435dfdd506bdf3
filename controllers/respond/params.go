package respond

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/pagination"
)

// QueryFloat - необязательный float-параметр; ok=false, если параметра нет
func QueryFloat(r *http.Request, name string) (v float64, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, apperr.Validation(name, "must be a number")
	}
	return v, true, nil
}

// RequiredFloat - обязательный float-параметр
func RequiredFloat(r *http.Request, name string) (float64, error) {
	v, ok, err := QueryFloat(r, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperr.Validation(name, "is required")
	}
	return v, nil
}

func QueryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name, "must be an integer")
	}
	return v, nil
}

func QueryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// Page читает page и per_page. Отсутствующие параметры остаются нулями и заменяются дефолтами сервиса.
func Page(r *http.Request) (pagination.Params, error) {
	var p pagination.Params
	for _, f := range []struct {
		name string
		dst  *int
	}{{"page", &p.Page}, {"per_page", &p.PerPage}} {
		if r.URL.Query().Get(f.name) == "" {
			continue
		}
		v, err := QueryInt(r, f.name)
		if err != nil {
			return pagination.Params{}, err
		}
		if v < 1 {
			return pagination.Params{}, apperr.Validation(f.name, "must be >= 1")
		}
		*f.dst = v
	}
	return p, nil
}

// PathUUID - uuid из переменной маршрута mux
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, apperr.Validation(name, "must be a valid UUID")
	}
	return id, nil
}
