package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"medreport/internal/models"
)

var (
	// "key": [items], 'key': [items] or key: [items]
	listFieldRe = regexp.MustCompile(`(?:"([^"\n]+)"|'([^'\n]+)'|\b([A-Za-z_][A-Za-z0-9_-]*))\s*:\s*\[([^\[\]]*)\]`)

	quotedItemRe = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'`)

	summaryRe = regexp.MustCompile(`(?i)["']?\b(?:patient[ _]summary|summary|overview)["']?\s*:\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')`)
)

// scanSummary finds the first summary/overview scalar.
func scanSummary(text string) (string, bool) {
	m := summaryRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return unescape(m[1]), true
	}
	return m[2], true
}

type listField struct {
	key   string
	items []string
}

// scanListFields finds every key: [items] occurrence. Quoted items are used
// when present, otherwise the bracket body is split on commas.
func scanListFields(text string) []listField {
	var out []listField
	for _, m := range listFieldRe.FindAllStringSubmatch(text, -1) {
		key := strings.TrimSpace(firstNonEmpty(m[1], m[2], m[3]))
		if key == "" {
			continue
		}
		out = append(out, listField{key: key, items: listItems(m[4])})
	}
	return out
}

func listItems(body string) []string {
	var items []string
	for _, q := range quotedItemRe.FindAllStringSubmatch(body, -1) {
		item := q[2]
		if strings.HasPrefix(q[0], `"`) {
			item = unescape(q[1])
		}
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) > 0 {
		return items
	}
	for _, part := range strings.Split(body, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// recoverFields runs both scans over the whole cleaned text.
func recoverFields(text, summaryKey string) *models.Record {
	rec := models.NewRecord()
	if summary, ok := scanSummary(text); ok {
		rec.Set(summaryKey, models.Text(strings.TrimSpace(summary)))
	}
	for _, f := range scanListFields(text) {
		if rec.Has(f.key) {
			continue
		}
		rec.Set(f.key, models.List(f.items...))
	}
	return rec
}
