package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

// candidate is an extracted item awaiting dedup and persistence.
type candidate struct {
	Title       string
	Body        string
	Severity    string
	PublishedAt *time.Time
}

var (
	rssItemRe  = regexp.MustCompile(`(?s)<item>(.*?)</item>`)
	rssTitleRe = regexp.MustCompile(`(?s)<title>(.*?)</title>`)
	rssDescRe  = regexp.MustCompile(`(?s)<description>(.*?)</description>`)
	rssDateRe  = regexp.MustCompile(`(?s)<pubDate>(.*?)</pubDate>`)

	htmlAnchorRe = regexp.MustCompile(`(?is)<a[^>]+href="([^"]*news[^"]*)"[^>]*>(.*?)</a>`)

	rssKeywords  = []string{"Rule", "Release", "Statement", "Commission"}
	htmlKeywords = []string{"Policy", "Guidance", "Consultation", "Statement", "Rule"}
)

// extractRSS pulls candidate items out of an RSS/Atom feed body, filtering
// to titles that look like substantive regulatory action and grading
// severity from the presence of "Emergency" in the title.
func extractRSS(body string) []candidate {
	var out []candidate
	for _, block := range rssItemRe.FindAllStringSubmatch(body, -1) {
		title := cleanText(firstMatch(rssTitleRe, block[1]))
		if title == "" || !containsAny(title, rssKeywords) {
			continue
		}
		desc := cleanText(firstMatch(rssDescRe, block[1]))
		severity := "HIGH"
		if strings.Contains(title, "Emergency") {
			severity = "CRITICAL"
		}
		out = append(out, candidate{
			Title:       title,
			Body:        desc,
			Severity:    severity,
			PublishedAt: parsePubDate(firstMatch(rssDateRe, block[1])),
		})
	}
	return out
}

// extractHTML pulls candidate press-release-style anchors out of an HTML
// listing page.
func extractHTML(body, baseHost string) []candidate {
	var out []candidate
	for _, m := range htmlAnchorRe.FindAllStringSubmatch(body, -1) {
		link := normalizeLink(m[1], baseHost)
		title := cleanText(stripTags(m[2]))
		if title == "" || !containsAny(title, htmlKeywords) {
			continue
		}
		out = append(out, candidate{
			Title:    title,
			Body:     link,
			Severity: "MEDIUM",
		})
	}
	return out
}

// extractAPI is an extensible decoder for JSON feeds; the reference
// monitor treats this source type as illustrative rather than a fixed
// wire contract, so this pass-through records the raw payload as a
// single MEDIUM-severity candidate when it looks non-empty.
func extractAPI(body string) []candidate {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return nil
	}
	return []candidate{{
		Title:    "API feed update",
		Body:     trimmed,
		Severity: "MEDIUM",
	}}
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func cleanText(s string) string {
	return strings.TrimSpace(s)
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch r {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func normalizeLink(link, baseHost string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	if baseHost == "" {
		return link
	}
	return strings.TrimRight(baseHost, "/") + "/" + strings.TrimLeft(link, "/")
}

// parsePubDate parses RFC 822, falling back to RFC 1123 and finally nil
// (the item is stored without a published date) rather than failing the
// item.
func parsePubDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	layouts := []string{time.RFC822, time.RFC822Z, time.RFC1123, time.RFC1123Z}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// contentHash deterministically fingerprints a candidate for dedup,
// independent of discovery time so re-polling the same feed never
// produces a second row for the same item.
func contentHash(sourceID, title string) string {
	sum := sha256.Sum256([]byte(sourceID + ":" + title))
	return hex.EncodeToString(sum[:])
}
