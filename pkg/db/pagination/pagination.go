package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrInvalidPageToken = errors.New("invalid_page_token")

type Pagination struct {
	PageToken string `form:"pageToken"`
	PageSize  int    `form:"pageSize"`
}

// Cursor marks the last row returned for a keyset ordered by (updated_at, id).
type Cursor struct {
	ID        string    `json:"id,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	Done      bool      `json:"done,omitempty"`
}

func (c Cursor) IsZero() bool {
	return c.ID == "" && c.UpdatedAt.IsZero() && !c.Done
}

type PageInfo struct {
	NextPageToken string `json:"nextPageToken,omitempty"`
	HasMore       bool   `json:"hasMore"`
}

// EncodeCursor serializes any cursor value into an opaque URL-safe token.
func EncodeCursor(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor is the inverse of EncodeCursor. An empty token leaves out untouched.
func DecodeCursor(token string, out any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrInvalidPageToken
	}
	if err := json.Unmarshal(b, out); err != nil {
		return ErrInvalidPageToken
	}
	return nil
}

// ClampPageSize applies the default for non-positive sizes and caps at max.
func ClampPageSize(size, def, max int) int {
	if size <= 0 {
		size = def
	}
	if max > 0 && size > max {
		size = max
	}
	return size
}

// Trim cuts a result fetched with limit+1 rows down to limit and reports
// whether another page exists.
func Trim[T any](items []T, limit int) ([]T, bool) {
	if limit <= 0 || len(items) <= limit {
		return items, false
	}
	return items[:limit], true
}
