package cache

import "testing"

func TestKeys_Distinct(t *testing.T) {
	keys := []string{
		ListingKey("https://e-hentai.org/"),
		ListingKey("https://e-hentai.org/?next=2577000"),
		DetailKey(2577000, "abcdef1234"),
		DetailKey(2577001, "abcdef1234"),
		GalleryKey(2577000, "abcdef1234", 0),
		GalleryKey(2577000, "abcdef1234", 1),
		CursorKey("home", 1),
		CursorKey("home", 2),
		CursorKey("search:language:chinese", 1),
	}

	seen := make(map[string]int)
	for i, k := range keys {
		if j, dup := seen[k]; dup {
			t.Errorf("keys %d and %d collide: %q", i, j, k)
		}
		seen[k] = i
	}
}

func TestGalleryKey_IncludesPage(t *testing.T) {
	a := GalleryKey(1, "t", 0)
	b := GalleryKey(1, "t", 1)
	if a == b {
		t.Errorf("gallery keys for different pages collide: %q", a)
	}
}
