// Package normalize turns raw model replies into filtered structured records.
//
// Replies are cleaned of code fences and response markers, then the span
// between the first '{' and the last '}' is parsed as strict JSON. When that
// fails, list fields and a summary scalar are recovered with regular
// expressions. Every path goes through Filter, and a record that ends up empty
// carries the raw reply under FallbackKey.
package normalize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"medreport/internal/logging"
	"medreport/internal/models"
	"medreport/internal/prompt"
)

const (
	// ErrorKey holds the message returned when no completion was received.
	ErrorKey = "Error"
	// FallbackKey holds the raw reply when nothing structured survived.
	FallbackKey = "Medical Analysis"
	// SummaryKey is where dynamic mode stores a recovered summary scalar.
	SummaryKey = "Patient Summary"

	UnavailableMessage = "AI service unavailable. No analysis was produced."
)

type Normalizer struct {
	mode   prompt.Mode
	logger *slog.Logger
}

func New(mode prompt.Mode, logger *slog.Logger) *Normalizer {
	if mode == "" {
		mode = prompt.ModeDynamic
	}
	return &Normalizer{mode: mode, logger: logging.OrDiscard(logger)}
}

func (n *Normalizer) summaryKey() string {
	if n.mode == prompt.ModeFixed {
		return "summary"
	}
	return SummaryKey
}

// Normalize converts raw into a record. A nil raw means the completion failed.
func (n *Normalizer) Normalize(ctx context.Context, raw *string) *models.Record {
	log := logging.FromContext(ctx, n.logger)
	if raw == nil {
		log.Warn("normalize.absent")
		rec := models.NewRecord()
		rec.Set(ErrorKey, models.List(UnavailableMessage))
		return rec
	}

	cleaned := Clean(*raw)
	var (
		rec  *models.Record
		path string
	)
	if parsed, ok := n.parseJSON(ctx, cleaned); ok {
		rec, path = parsed, "json"
	} else {
		rec, path = recoverFields(cleaned, n.summaryKey()), "regex"
	}
	if n.mode == prompt.ModeFixed {
		rec = canonicalFixed(rec)
	}

	filtered, dropped := filterWithReport(rec)
	if len(dropped) > 0 {
		log.Info("normalize.filtered", "path", path, "dropped", dropped)
	}
	if filtered.Len() == 0 {
		log.Info("normalize.empty_fallback", "path", path, "raw_chars", len(*raw))
		out := models.NewRecord()
		out.Set(FallbackKey, models.List(strings.TrimSpace(*raw)))
		return out
	}
	log.Info("normalize.done", "path", path, "keys", filtered.Len())
	return filtered
}

// NormalizeText is Normalize for a reply that is known to be present.
func (n *Normalizer) NormalizeText(ctx context.Context, raw string) *models.Record {
	return n.Normalize(ctx, &raw)
}

func (n *Normalizer) parseJSON(ctx context.Context, cleaned string) (*models.Record, bool) {
	span, ok := braceSpan(cleaned)
	if !ok || !gjson.Valid(span) {
		return nil, false
	}
	doc := gjson.Parse(span)
	if !doc.IsObject() {
		return nil, false
	}

	rec := models.NewRecord()
	var coercedKeys []string
	doc.ForEach(func(k, val gjson.Result) bool {
		v, coerced, ok := toValue(val)
		if coerced {
			coercedKeys = append(coercedKeys, k.String())
		}
		if ok {
			rec.Set(k.String(), v)
		}
		return true
	})
	if len(coercedKeys) > 0 {
		logging.FromContext(ctx, n.logger).Info("normalize.coerced", "keys", coercedKeys)
	}
	return rec, true
}

// fixedAliases maps normalized keys onto the legacy schema names.
var fixedAliases = map[string]string{
	"patient_summary": "summary",
	"overview":        "summary",
}

// canonicalFixed renames keys that match a legacy schema key to its canonical
// lowercase name and moves them to the front in schema order. Every other key
// is kept, in its original order.
func canonicalFixed(rec *models.Record) *models.Record {
	schema := make(map[string]struct{}, len(prompt.FixedKeys))
	for _, k := range prompt.FixedKeys {
		schema[k] = struct{}{}
	}
	byCanon := make(map[string]models.Value, len(prompt.FixedKeys))
	rest := models.NewRecord()
	rec.Each(func(k string, v models.Value) bool {
		norm := NormalizeKey(k)
		if alias, ok := fixedAliases[norm]; ok {
			norm = alias
		}
		if _, ok := schema[norm]; ok {
			if _, seen := byCanon[norm]; !seen {
				byCanon[norm] = v
			}
			return true
		}
		if !rest.Has(k) {
			rest.Set(k, v)
		}
		return true
	})
	out := models.NewRecord()
	for _, key := range prompt.FixedKeys {
		if v, ok := byCanon[key]; ok {
			out.Set(key, v)
		}
	}
	rest.Each(func(k string, v models.Value) bool {
		out.Set(k, v)
		return true
	})
	return out
}
