// Package gate decides whether text is medical before it is analyzed.
package gate

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"medreport/internal/completion"
	"medreport/internal/logging"
	"medreport/internal/prompt"
)

const DefaultCap = 2000

var negativeRe = regexp.MustCompile(`NON[\s_-]?MEDICAL`)

// Gate asks a completion backend for a MEDICAL / NON-MEDICAL verdict.
// It fails open: errors and ambiguous replies count as medical.
type Gate struct {
	client completion.Client
	cap    int
	logger *slog.Logger
}

func New(client completion.Client, cap int, logger *slog.Logger) *Gate {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Gate{client: client, cap: cap, logger: logging.OrDiscard(logger)}
}

func (g *Gate) Classify(ctx context.Context, text string) bool {
	log := logging.FromContext(ctx, g.logger)
	reply, err := completion.Prompt(ctx, g.client, prompt.Classification(text, g.cap))
	if err != nil {
		log.Warn("gate.error", "error", err, "decision", true)
		return true
	}
	medical := Decide(reply)
	log.Info("gate.decision", "medical", medical, "reply", prompt.Truncate(strings.TrimSpace(reply), 40))
	return medical
}

// Decide applies the verdict rule to a classifier reply. Only a reply that
// names the negative label and not the positive one is false.
func Decide(reply string) bool {
	up := strings.ToUpper(reply)
	negative := negativeRe.MatchString(up)
	positive := strings.Contains(negativeRe.ReplaceAllString(up, " "), "MEDICAL")
	return !(negative && !positive)
}
