package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	p, err := Params{}.Normalize(20, 100)
	require.NoError(t, err)
	assert.Equal(t, Params{Page: 1, PerPage: 20}, p)

	p, err = Params{Page: 3, PerPage: 500}.Normalize(20, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, p.PerPage)
	assert.Equal(t, 200, p.Offset())

	_, err = Params{Page: -1}.Normalize(20, 100)
	assert.Error(t, err)

	_, err = Params{Page: 1, PerPage: -5}.Normalize(20, 100)
	assert.Error(t, err)
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(Params{Page: 1, PerPage: 10}, 25)
	assert.Equal(t, 3, m.Pages)
	assert.True(t, m.HasNext)
	assert.False(t, m.HasPrev)

	m = NewMeta(Params{Page: 3, PerPage: 10}, 25)
	assert.False(t, m.HasNext)
	assert.True(t, m.HasPrev)

	m = NewMeta(Params{Page: 1, PerPage: 10}, 0)
	assert.Equal(t, 0, m.Pages)
	assert.False(t, m.HasNext)
}
