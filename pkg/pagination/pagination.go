package pagination

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxLimit caps the page size a caller may ask for.
const MaxLimit = 100

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a keyset position in a newest-first listing. Rows strictly older
// than (CreatedAt, ID) come after it.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Params holds keyset pagination parameters. A zero Limit means the whole
// history is requested in one response.
type Params struct {
	Limit int     `json:"limit,omitempty"`
	After *Cursor `json:"-"`
}

// Unbounded reports whether the caller asked for every row.
func (p Params) Unbounded() bool {
	return p.Limit <= 0
}

// FromRequest extracts limit and cursor query parameters. Missing parameters
// are not an error; malformed ones are.
func FromRequest(r *http.Request) (Params, error) {
	var p Params
	q := r.URL.Query()

	if limit := q.Get("limit"); limit != "" {
		v, err := strconv.Atoi(limit)
		if err != nil || v < 1 || v > MaxLimit {
			return Params{}, errors.New("limit must be between 1 and 100")
		}
		p.Limit = v
	}

	if raw := q.Get("cursor"); raw != "" {
		c, err := Decode(raw)
		if err != nil {
			return Params{}, err
		}
		p.After = &c
	}
	return p, nil
}

// Encode renders the cursor as an opaque URL-safe token.
func Encode(c Cursor) string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a token produced by Encode.
func Decode(token string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	ts, id, ok := strings.Cut(string(b), "|")
	if !ok || id == "" {
		return Cursor{}, ErrInvalidCursor
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{CreatedAt: at, ID: id}, nil
}

// Page is one slice of a newest-first listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// NewPage trims rows fetched with Limit+1 back to Limit and derives the next
// cursor from the last kept row. Unbounded params return rows as-is.
func NewPage[T any](rows []T, params Params, cursorOf func(T) Cursor) Page[T] {
	if rows == nil {
		rows = []T{}
	}
	if params.Unbounded() || len(rows) <= params.Limit {
		return Page[T]{Items: rows}
	}
	rows = rows[:params.Limit]
	return Page[T]{
		Items:      rows,
		NextCursor: Encode(cursorOf(rows[len(rows)-1])),
	}
}
