package gate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"medreport/internal/completion"
	"medreport/internal/models"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		reply string
		want  bool
	}{
		{"MEDICAL", true},
		{"NON-MEDICAL", false},
		{"non-medical.", false},
		{"NON MEDICAL", false},
		{"MEDICAL, but borderline NON-MEDICAL", true},
		{"", true},
		{"I cannot tell", true},
		{"Medical", true},
	}
	for _, tc := range cases {
		if got := Decide(tc.reply); got != tc.want {
			t.Fatalf("Decide(%q)=%v want %v", tc.reply, got, tc.want)
		}
	}
}

func TestClassifyTruncatesAndFailsOpen(t *testing.T) {
	var sent string
	client := completion.ClientFunc(func(ctx context.Context, msgs []models.Message) (string, error) {
		sent = msgs[0].Content
		return "NON-MEDICAL", nil
	})
	g := New(client, 50, nil)
	if g.Classify(context.Background(), strings.Repeat("z", 80)) {
		t.Fatalf("expected non-medical verdict")
	}
	if strings.Contains(sent, strings.Repeat("z", 51)) || !strings.Contains(sent, strings.Repeat("z", 50)) {
		t.Fatalf("classification text not capped at 50 characters")
	}

	failing := completion.ClientFunc(func(ctx context.Context, msgs []models.Message) (string, error) {
		return "", errors.New("timeout")
	})
	if !New(failing, 0, nil).Classify(context.Background(), "anything") {
		t.Fatalf("errors must fail open")
	}
}
