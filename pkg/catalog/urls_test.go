package catalog

import "testing"

func TestURLBuilder(t *testing.T) {
	b := NewURLBuilder(false)

	if got := b.HomeURL(""); got != "https://e-hentai.org/" {
		t.Errorf("HomeURL = %q", got)
	}
	if got := b.HomeURL("2576000"); got != "https://e-hentai.org/?next=2576000" {
		t.Errorf("HomeURL with cursor = %q", got)
	}
	if got := b.SearchURL("language:chinese", ""); got != "https://e-hentai.org/?f_search=language%3Achinese" {
		t.Errorf("SearchURL = %q", got)
	}
	if got := b.SearchURL("cats", "2576000"); got != "https://e-hentai.org/?f_search=cats&next=2576000" {
		t.Errorf("SearchURL with cursor = %q", got)
	}
	if got := b.GalleryURL(2577000, "abcdef1234"); got != "https://e-hentai.org/g/2577000/abcdef1234/" {
		t.Errorf("GalleryURL = %q", got)
	}
	if got := b.GalleryPageURL(2577000, "abcdef1234", 2); got != "https://e-hentai.org/g/2577000/abcdef1234/?p=2" {
		t.Errorf("GalleryPageURL = %q", got)
	}
	if got := b.PopularURL(); got != "https://e-hentai.org/popular" {
		t.Errorf("PopularURL = %q", got)
	}
	if got := b.Referer(); got != "https://e-hentai.org" {
		t.Errorf("Referer = %q", got)
	}
}

func TestURLBuilder_Exhentai(t *testing.T) {
	b := NewURLBuilder(true)
	if got := b.HomeURL(""); got != "https://exhentai.org/" {
		t.Errorf("HomeURL = %q", got)
	}
}

func TestTagURL(t *testing.T) {
	b := NewURLBuilder(false)
	if got := b.TagURL("language:chinese", 0); got != "https://e-hentai.org/tag/language:chinese" {
		t.Errorf("TagURL = %q", got)
	}
	if got := b.TagURL("language:chinese", 3); got != "https://e-hentai.org/tag/language:chinese/3" {
		t.Errorf("TagURL page 3 = %q", got)
	}
}
