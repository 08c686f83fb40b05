package prompt

import (
	"fmt"
	"strings"
)

// Mode selects which response schema the analysis prompt asks for.
type Mode string

const (
	// ModeFixed asks for the five-key legacy schema.
	ModeFixed Mode = "fixed"
	// ModeDynamic lets the model choose clinically descriptive keys.
	ModeDynamic Mode = "dynamic"
)

// FixedKeys is the legacy schema in display order.
var FixedKeys = []string{"summary", "conditions", "medications", "vitals", "treatments"}

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeFixed:
		return ModeFixed, nil
	case ModeDynamic, "":
		return ModeDynamic, nil
	default:
		return "", fmt.Errorf("unknown prompt mode %q", s)
	}
}

// Truncate returns at most limit characters of s. It counts runes, not bytes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// Builder renders analysis prompts for one mode.
type Builder struct {
	mode Mode
	cap  int
}

func NewBuilder(mode Mode, cap int) *Builder {
	if cap <= 0 {
		cap = 2500
	}
	return &Builder{mode: mode, cap: cap}
}

func (b *Builder) Mode() Mode { return b.mode }

// Build embeds the first cap characters of text in the analysis instructions.
func (b *Builder) Build(text string) string {
	return Build(b.mode, text, b.cap)
}

// Build renders the analysis prompt for mode with text cut to cap characters.
func Build(mode Mode, text string, cap int) string {
	var sb strings.Builder
	sb.WriteString("Analyze the medical report below. Extract the clinically relevant details into a JSON object.\n")
	sb.WriteString("Use simple lists of strings. Do not use nested objects.\n\n")

	if mode == ModeFixed {
		sb.WriteString("Keys required:\n")
		sb.WriteString("- \"summary\": A brief string summary.\n")
		sb.WriteString("- \"conditions\": A list of strings.\n")
		sb.WriteString("- \"medications\": A list of strings.\n")
		sb.WriteString("- \"vitals\": A list of strings.\n")
		sb.WriteString("- \"treatments\": A list of strings.\n")
	} else {
		sb.WriteString("Choose short, clinically descriptive keys that fit this report ")
		sb.WriteString("(for example \"Patient Summary\", \"Diagnoses\", \"Lab Results\", \"Medications\", \"Follow-up\").\n")
		sb.WriteString("Use \"Patient Summary\" for a brief string summary; every other value is a list of strings.\n")
		sb.WriteString("Do not include names, contact details, addresses, identifiers, insurance, age, sex or date of birth.\n")
	}

	sb.WriteString("\nMedical Report:\n")
	sb.WriteString(Truncate(text, cap))
	sb.WriteString("\n\nRespond with ONLY the JSON object, no other text.")
	return sb.String()
}

// Classification renders the binary domain-gate prompt for the first cap characters of text.
func Classification(text string, cap int) string {
	var sb strings.Builder
	sb.WriteString("You are a strict document classifier. Decide whether the text below is a medical document ")
	sb.WriteString("or medical query (clinical notes, lab results, prescriptions, imaging or discharge reports, symptoms).\n")
	sb.WriteString("Respond with a single word: MEDICAL or NON-MEDICAL.\n\nText:\n")
	sb.WriteString(Truncate(text, cap))
	return sb.String()
}

// ChatSystem steers the conversational assistant.
const ChatSystem = "You are a helpful medical assistant. Answer health and medical questions clearly and " +
	"carefully, and recommend consulting a qualified clinician for diagnosis or treatment decisions. " +
	"If the user asks something unrelated to medicine, give a brief, friendly answer instead of refusing."
