package capture

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/webshot/browser"
	"github.com/use-agent/webshot/models"
)

// describePage reads title, final URL and description. None of it is worth
// failing a capture over, so errors only cost the affected field; a missing
// final URL falls back to the requested one.
func describePage(ctx context.Context, sess browser.Session, requested string, timeout time.Duration) models.PageInfo {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := models.PageInfo{URL: requested}

	title, finalURL, err := sess.Info(ctx)
	if err != nil {
		slog.Warn("failed to read page info", "url", requested, "error", err)
	}
	if finalURL == "" {
		finalURL = requested
	}
	page.Title = title
	page.FinalURL = finalURL
	page.Redirected = finalURL != requested

	if html, err := sess.HTML(ctx); err == nil {
		page.Description = metaDescription(html)
	} else {
		slog.Debug("failed to read page HTML", "url", requested, "error", err)
	}
	return page
}

// metaDescription returns the page's meta description, falling back to
// og:description.
func metaDescription(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	for _, sel := range []string{
		`meta[name="description"]`,
		`meta[property="og:description"]`,
	} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
