package catalog

import "errors"

var (
	// ErrPageUnavailable is returned when the cursor chain ends before the
	// requested page: the catalog has fewer pages than asked for. Callers
	// must treat this as "no such page", not a transient failure.
	ErrPageUnavailable = errors.New("page unavailable")

	// ErrDetailEmpty is returned when a gallery detail page parsed without
	// its mandatory title field. The result is never cached, so the next
	// call fetches again.
	ErrDetailEmpty = errors.New("gallery detail empty")
)

// GalleryRef is the stable external identity of a catalog entry.
type GalleryRef struct {
	GID   int64
	Token string
}
