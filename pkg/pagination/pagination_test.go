package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromRequest_NoParamsIsUnbounded(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/get-notifications", nil)
	p, err := FromRequest(req)

	require.NoError(t, err)
	assert.True(t, p.Unbounded())
	assert.Nil(t, p.After)
}

func TestFromRequest_LimitAndCursor(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 5, time.UTC), ID: "n-42"}
	req := httptest.NewRequest(http.MethodGet, "/get-notifications?limit=25&cursor="+Encode(c), nil)

	p, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, 25, p.Limit)
	require.NotNil(t, p.After)
	assert.True(t, c.CreatedAt.Equal(p.After.CreatedAt))
	assert.Equal(t, "n-42", p.After.ID)
}

func TestFromRequest_RejectsBadLimit(t *testing.T) {
	for _, q := range []string{"limit=0", "limit=-3", "limit=101", "limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/x?"+q, nil)
		_, err := FromRequest(req)
		assert.Error(t, err, q)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, token := range []string{"!!!", "bm90LWEtY3Vyc29y", Encode(Cursor{})[:4]} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrInvalidCursor, token)
	}
}

func TestNewPage(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		id string
		at time.Time
	}
	rows := []row{{"c", base.Add(3 * time.Minute)}, {"b", base.Add(2 * time.Minute)}, {"a", base.Add(time.Minute)}}
	cursorOf := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	t.Run("unbounded returns everything", func(t *testing.T) {
		page := NewPage(rows, Params{}, cursorOf)
		assert.Len(t, page.Items, 3)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("extra row produces a cursor", func(t *testing.T) {
		page := NewPage(rows, Params{Limit: 2}, cursorOf)
		require.Len(t, page.Items, 2)
		next, err := Decode(page.NextCursor)
		require.NoError(t, err)
		assert.Equal(t, "b", next.ID)
	})

	t.Run("last page has no cursor", func(t *testing.T) {
		page := NewPage(rows, Params{Limit: 5}, cursorOf)
		assert.Len(t, page.Items, 3)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("nil rows become empty", func(t *testing.T) {
		page := NewPage[row](nil, Params{Limit: 5}, cursorOf)
		assert.NotNil(t, page.Items)
	})
}
