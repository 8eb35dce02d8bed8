package services

import (
	"fmt"
	"time"

	"github.com/threadline/api/internal/platform/pagination"
)

// decodeTimeCursor parses a page token into the (timestamp, document ID)
// start-after pair used by the time-ordered listings. Page tokens carry the
// timestamp as RFC 3339 text, so it must be rehydrated before it can anchor
// a query.
func decodeTimeCursor(token string) ([]any, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if cursor.IsZero() {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, fmt.Errorf("%w: unexpected cursor shape", pagination.ErrInvalidPageToken)
	}
	rawTime, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor timestamp", pagination.ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return nil, fmt.Errorf("%w: cursor timestamp", pagination.ErrInvalidPageToken)
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, fmt.Errorf("%w: cursor id", pagination.ErrInvalidPageToken)
	}
	return []any{ts, id}, nil
}

func encodeTimeCursor(startAfter []any) (string, error) {
	return pagination.EncodeToken(pagination.Cursor{StartAfter: startAfter})
}
