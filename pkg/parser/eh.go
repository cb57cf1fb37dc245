package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/sf-yuzifu/eh-api-server/pkg/logging"
)

// Patterns for the bits of structure that live in URLs and inline styles
// rather than the DOM.
var (
	patternGalleryURL   = regexp.MustCompile(`/g/(\d+)/([a-f0-9]+)/?`)
	patternRating       = regexp.MustCompile(`background-position:\s*(-?\d+)px`)
	patternPages        = regexp.MustCompile(`(?i)(\d+)\s+pages?`)
	patternNextID       = regexp.MustCompile(`[?&]next=(\d+)`)
	patternStyleDetails = regexp.MustCompile(`width:(\d+)px;height:(\d+)px;.*background:.*?url\(([^)]+)\) (-?\d+)px (-?\d+)`)
	patternStyleURL     = regexp.MustCompile(`url\((.+?)\)`)
	patternNumber       = regexp.MustCompile(`(\d+)`)
	patternDecimal      = regexp.MustCompile(`([\d.]+)`)
)

// EH parses e-hentai/exhentai markup. The two sites share their DOM.
type EH struct {
	logger zerolog.Logger
}

// NewEH creates the e-hentai markup parser.
func NewEH() *EH {
	return &EH{logger: logging.NewLogger("parser")}
}

// ParseList implements Parser.
func (p *EH) ParseList(html string) ListPage {
	page := ListPage{Galleries: []GallerySummary{}}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page
	}

	table := doc.Find("table.itg.gltc").First()
	if table.Length() == 0 {
		p.logger.Warn().Msg("No gallery table in listing page")
		return page
	}

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		nameCell := row.Find("td.glname").First()
		if nameCell.Length() == 0 {
			return
		}
		link := nameCell.Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		m := patternGalleryURL.FindStringSubmatch(href)
		if m == nil {
			return
		}

		gid, _ := strconv.ParseInt(m[1], 10, 64)
		g := GallerySummary{GID: gid, Token: m[2], URL: href, Title: "N/A"}

		if title := link.Find("div.glink").First(); title.Length() > 0 {
			g.Title = strings.TrimSpace(title.Text())
		}

		if thumbCell := row.Find("td.gl2c").First(); thumbCell.Length() > 0 {
			img := thumbCell.Find("img").First()
			if src, ok := img.Attr("data-src"); ok && src != "" {
				g.Thumbnail = src
			} else if src, ok := img.Attr("src"); ok {
				g.Thumbnail = src
			}
			thumbCell.Find("div[id^='posted_']").EachWithBreak(func(_ int, posted *goquery.Selection) bool {
				g.Posted = strings.TrimSpace(posted.Text())
				return false
			})
		}

		if cat := row.Find("td.glcat").First(); cat.Length() > 0 {
			g.Category = strings.TrimSpace(cat.Text())
		}

		if rating := nameCell.Find("div.ir").First(); rating.Length() > 0 {
			style, _ := rating.Attr("style")
			if m := patternRating.FindStringSubmatch(style); m != nil {
				px, _ := strconv.Atoi(m[1])
				g.Rating = math.Round((5-math.Abs(float64(px))/16.0)*100) / 100
			}
		}

		if hideCell := row.Find("td.glhide").First(); hideCell.Length() > 0 {
			if uploader := hideCell.Find("a").First(); uploader.Length() > 0 {
				g.Uploader = strings.TrimSpace(uploader.Text())
			}
			if m := patternPages.FindStringSubmatch(hideCell.Text()); m != nil {
				g.Pages, _ = strconv.Atoi(m[1])
			}
		}

		page.Galleries = append(page.Galleries, g)
	})

	if len(page.Galleries) == 0 && table.Find("tr").Length() > 1 {
		p.logger.Warn().Msg("Gallery table present but no row parsed")
	}

	page.Pagination = p.parsePagination(doc)
	return page
}

// parsePagination finds the forward link and extracts its cursor token. The
// origin never exposes page numbers, only this forward pointer.
func (p *EH) parsePagination(doc *goquery.Document) Pagination {
	pager := doc.Find("div.searchnav").First()
	if pager.Length() == 0 {
		pager = doc.Find("table.ptt").First()
	}
	if pager.Length() == 0 {
		return Pagination{}
	}

	next := pager.Find("a#unext").First()
	if next.Length() == 0 {
		pager.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if strings.TrimSpace(a.Text()) == ">" {
				next = a
				return false
			}
			return true
		})
	}

	href, ok := next.Attr("href")
	if !ok {
		return Pagination{}
	}

	pg := Pagination{HasNext: true}
	if m := patternNextID.FindStringSubmatch(href); m != nil {
		pg.NextID = m[1]
	}
	return pg
}

// ParseDetail implements Parser.
func (p *EH) ParseDetail(html string) GalleryDetail {
	var detail GalleryDetail

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return detail
	}

	if doc.Find("#gn").Length() == 0 && doc.Find("#gj").Length() == 0 {
		p.logger.Warn().Msg("No title element in gallery detail page")
		return detail
	}

	detail.Title = strings.TrimSpace(doc.Find("#gn").First().Text())
	detail.TitleJP = strings.TrimSpace(doc.Find("#gj").First().Text())
	detail.Category = strings.TrimSpace(doc.Find("#gdc a").First().Text())

	if thumb := doc.Find("#gd1 div").First(); thumb.Length() > 0 {
		style, _ := thumb.Attr("style")
		if m := patternStyleURL.FindStringSubmatch(style); m != nil {
			detail.Thumbnail = m[1]
		}
	}

	tags := make(map[string][]string)
	doc.Find("#taglist tr").Each(func(_ int, row *goquery.Selection) {
		name := row.Find("td.tc").First()
		if name.Length() == 0 {
			return
		}
		key := strings.TrimSuffix(strings.TrimSpace(name.Text()), ":")
		var values []string
		row.Find("td div a").Each(func(_ int, a *goquery.Selection) {
			values = append(values, strings.TrimSpace(a.Text()))
		})
		if len(values) > 0 {
			tags[key] = values
		}
	})
	if len(tags) > 0 {
		detail.Tags = tags
	}

	if label := doc.Find("#rating_label").First(); label.Length() > 0 {
		if m := patternDecimal.FindStringSubmatch(label.Text()); m != nil {
			detail.Rating, _ = strconv.ParseFloat(m[1], 64)
		}
	}

	if pages := doc.Find("#gdd tr:nth-of-type(4) td.gdt2").First(); pages.Length() > 0 {
		if m := patternNumber.FindStringSubmatch(pages.Text()); m != nil {
			detail.Pages, _ = strconv.Atoi(m[1])
		}
	}

	return detail
}

// ParsePreviewList implements Parser. Descriptor indices come from the anchor
// position inside the preview container, so anchors whose style does not
// carry sprite geometry leave gaps rather than shifting later indices.
func (p *EH) ParsePreviewList(html string) []PreviewDescriptor {
	var previews []PreviewDescriptor

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return previews
	}

	container := doc.Find("div#gdt").First()
	if container.Length() == 0 {
		p.logger.Warn().Msg("No preview container in gallery page")
		return previews
	}

	anchors := container.Find("a")
	anchors.Each(func(index int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		style, ok := a.Find("div").First().Attr("style")
		if !ok {
			return
		}
		m := patternStyleDetails.FindStringSubmatch(style)
		if m == nil {
			return
		}

		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		x, _ := strconv.Atoi(m[4])
		y, _ := strconv.Atoi(m[5])
		previews = append(previews, PreviewDescriptor{
			Index:        index,
			PageURL:      href,
			ThumbnailURL: m[3],
			Crop:         CropRect{X: abs(x), Y: abs(y), W: w, H: h},
		})
	})

	if len(previews) == 0 && anchors.Length() > 0 {
		p.logger.Warn().Msg("Preview anchors present but none parsed")
	}

	return previews
}

// ParseImagePage implements Parser.
func (p *EH) ParseImagePage(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	src, ok := doc.Find("div#i3 img").First().Attr("src")
	if !ok {
		p.logger.Warn().Msg("No image element in image page")
		return ""
	}
	return src
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
