package browser

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Fetcher captures static pages: a plain GET honoring the session's user
// agent, plus CSS-selector extraction into a raw record. Sessions that
// need JS rendering go through the Pool instead.
type Fetcher struct {
	client *resty.Client
	log    *zap.SugaredLogger
}

// NewFetcher creates a static-page fetcher.
func NewFetcher(userAgent string, requestTimeout time.Duration, log *zap.SugaredLogger) *Fetcher {
	client := resty.New().
		SetHeader("user-agent", userAgent).
		SetTimeout(requestTimeout)
	return &Fetcher{
		client: client,
		log:    log.With("component", "fetcher"),
	}
}

// Fetch GETs a page and extracts one raw record using the field→selector
// map. Each selector yields the text of its first match; selectors ending
// in @attr yield that attribute instead.
func (f *Fetcher) Fetch(ctx context.Context, url string, selectors map[string]string) (*models.RawRecord, error) {
	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errs.Wrapf(err, "fetch %s", url)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, errs.Wrapf(err, "parse %s", url)
	}

	fields := make(map[string]any, len(selectors))
	for field, selector := range selectors {
		fields[field] = extract(doc, selector)
	}

	record := &models.RawRecord{
		ID:         uuid.New().String(),
		SourceURL:  url,
		CapturedAt: time.Now(),
		Fields:     fields,
		Meta: models.ExtractionMeta{
			StatusCode: res.StatusCode(),
			LoadTimeMS: res.Time().Milliseconds(),
			Method:     "GET",
		},
	}
	f.log.Debugw("page fetched", "url", url, "status", res.StatusCode(), "fields", len(fields))
	return record, nil
}

// extract resolves one selector against the document. "sel @attr" reads an
// attribute; a bare selector reads trimmed text.
func extract(doc *goquery.Document, selector string) any {
	sel, attr := splitAttr(selector)
	node := doc.Find(sel).First()
	if node.Length() == 0 {
		return nil
	}
	if attr != "" {
		v, ok := node.Attr(attr)
		if !ok {
			return nil
		}
		return v
	}
	return strings.TrimSpace(node.Text())
}

func splitAttr(selector string) (string, string) {
	if i := strings.LastIndex(selector, "@"); i >= 0 {
		return strings.TrimSpace(selector[:i]), selector[i+1:]
	}
	return selector, ""
}
