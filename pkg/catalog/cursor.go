package catalog

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/cache"
	"github.com/sf-yuzifu/eh-api-server/pkg/client"
	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
)

var cursorReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "eh_cursor_replays_total",
	Help: "Total listing pages fetched to fill cursor chain gaps",
})

// CursorStore maps (search key, page number) to the opaque continuation
// token the origin issued for that page. The origin only exposes forward
// iteration, so reaching an arbitrary page number means replaying the chain
// from page 1 through the listing fetcher, memoizing every link on the way.
//
// Stored links are never modified, only replayed to fill gaps: the token for
// page N is derived only by parsing the response built from page N-1's token.
type CursorStore struct {
	links  *cache.Cache[string]
	lists  *ListFetcher
	logger zerolog.Logger
}

// NewCursorStore creates a CursorStore backed by the cursor tier.
func NewCursorStore(tier *cache.Cache[string], lists *ListFetcher) *CursorStore {
	return &CursorStore{
		links:  tier,
		lists:  lists,
		logger: logging.NewLogger("catalog"),
	}
}

// ResolveCursor returns the cursor token that requests page (1-based) of the
// listing identified by searchKey. Page 1 needs no cursor and returns "".
// buildURL turns a cursor (possibly empty) into the listing request URL.
//
// Returns ErrPageUnavailable when some earlier page has no next cursor, i.e.
// the catalog ends before the requested page.
func (s *CursorStore) ResolveCursor(ctx context.Context, searchKey string, page int, buildURL func(cursor string) string, hdr client.Headers) (string, error) {
	if page <= 1 {
		return "", nil
	}

	// The link stored under page p is the token extracted FROM page p,
	// which requests page p+1.
	if token, ok := s.links.Get(cache.CursorKey(searchKey, page-1)); ok {
		return token, nil
	}

	s.logger.Debug().
		Str("search_key", searchKey).
		Int("page", page).
		Msg("Cursor chain cold, replaying from page 1")

	// cursor is the token that requests page p+1, carried through the walk
	// so an eviction mid-replay cannot break the chain.
	cursor := ""
	for p := 1; p < page; p++ {
		if token, ok := s.links.Get(cache.CursorKey(searchKey, p)); ok {
			cursor = token
			continue
		}

		cursorReplaysTotal.Inc()
		listing, err := s.lists.FetchList(ctx, buildURL(cursor), hdr)
		if err != nil {
			return "", err
		}

		if !listing.Pagination.HasNext || listing.Pagination.NextID == "" {
			s.logger.Debug().
				Str("search_key", searchKey).
				Int("last_page", p).
				Int("requested", page).
				Msg("Cursor chain exhausted before requested page")
			return "", ErrPageUnavailable
		}

		cursor = listing.Pagination.NextID
		s.links.Set(cache.CursorKey(searchKey, p), cursor)
	}

	return cursor, nil
}
