// Package classify decides whether a message is worth deep processing and
// extracts PDF attachments and candidate invoice-download links from it.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mailsift/invoicesync/internal/eml"
	"github.com/mailsift/invoicesync/internal/model"
)

// bareURL matches http(s) URLs embedded in body text.
var bareURL = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)

// Amount patterns, tried in priority order; the first match wins.
var (
	// Symbol-prefixed: $42.00, € 1.299,00, £9.99
	amountSymbol = regexp.MustCompile(`[$€£]\s?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?`)
	// Amount followed by an ISO currency code: 42.00 USD
	amountISO = regexp.MustCompile(`(?i)\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?\s?(?:USD|EUR|GBP|CHF|CAD|AUD|SEK|NOK|DKK|PLN)\b`)
	// Labelled: Total: 42.00, amount 9,99
	amountLabelled = regexp.MustCompile(`(?i)(?:total|amount|sum|price)\s*:?\s*[$€£]?\s?\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?`)
)

// Classifier applies the configured invoice heuristics to parsed messages.
type Classifier struct {
	cfg          Config
	bodyPatterns []*regexp.Regexp
}

// New compiles a classifier from config.
func New(cfg Config) (*Classifier, error) {
	c := &Classifier{cfg: cfg}
	for _, p := range cfg.BodyPatterns {
		re, err := regexp.Compile(`(?is)` + p)
		if err != nil {
			return nil, fmt.Errorf("compile body pattern %q: %w", p, err)
		}
		c.bodyPatterns = append(c.bodyPatterns, re)
	}
	return c, nil
}

// IsRelevant is the cheap filter applied before deep processing. A message is
// relevant when it carries a PDF attachment, an invoice keyword in subject or
// sender, or an invoice/receipt action phrase in the plain-text body.
func (c *Classifier) IsRelevant(email *eml.Email) bool {
	for _, att := range email.Attachments {
		if isPDF(att.ContentType, att.Filename) {
			return true
		}
	}

	haystack := strings.ToLower(email.Subject + " " + email.From)
	for _, kw := range c.cfg.Keywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}

	for _, re := range c.bodyPatterns {
		if re.MatchString(email.TextBody) {
			return true
		}
	}
	return false
}

// PDFAttachments returns every attachment that looks like a PDF. A missing
// filename is replaced with "attachment-<position>.pdf" so the stored object
// always has a name.
func (c *Classifier) PDFAttachments(email *eml.Email, position uint32) []model.Attachment {
	var out []model.Attachment
	for _, att := range email.Attachments {
		if !isPDF(att.ContentType, att.Filename) {
			continue
		}
		filename := att.Filename
		if filename == "" {
			filename = fmt.Sprintf("attachment-%d.pdf", position)
		}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/pdf"
		}
		out = append(out, model.Attachment{
			Filename:    filename,
			ContentType: contentType,
			Size:        int64(len(att.Content)),
			Content:     att.Content,
		})
	}
	return out
}

// InvoiceLinks scans the message bodies for candidate invoice-download URLs.
// Two families are collected: href values containing a link keyword, and bare
// URLs containing a URL keyword. URLs are deduplicated by exact string within
// one message; each surviving URL gets a nearby-amount lookup.
func (c *Classifier) InvoiceLinks(email *eml.Email) []model.InvoiceLink {
	body := email.HTMLBody + "\n" + email.TextBody

	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		u = strings.TrimRight(u, ".,;")
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		urls = append(urls, u)
	}

	if email.HTMLBody != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(email.HTMLBody)); err == nil {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				if containsAny(strings.ToLower(href), c.cfg.LinkKeywords) {
					add(href)
				}
			})
		}
	}

	for _, u := range bareURL.FindAllString(body, -1) {
		if containsAny(strings.ToLower(u), c.cfg.URLKeywords) {
			add(u)
		}
	}

	links := make([]model.InvoiceLink, 0, len(urls))
	for _, u := range urls {
		links = append(links, model.InvoiceLink{
			URL:    u,
			Amount: c.nearbyAmount(body, u),
		})
	}
	return links
}

// nearbyAmount searches a window around the URL's position in the body for a
// currency amount, trying the three patterns in priority order.
func (c *Classifier) nearbyAmount(body, url string) string {
	idx := strings.Index(body, url)
	if idx < 0 {
		// href not literally present (e.g. entity-encoded); search whole body.
		idx = 0
		url = ""
	}

	start := idx - c.cfg.AmountWindow
	if start < 0 {
		start = 0
	}
	end := idx + len(url) + c.cfg.AmountWindow
	if end > len(body) {
		end = len(body)
	}
	window := body[start:end]

	for _, re := range []*regexp.Regexp{amountSymbol, amountISO, amountLabelled} {
		if m := re.FindString(window); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// isPDF reports whether an attachment's declared type or filename marks it
// as a PDF.
func isPDF(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".pdf")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
