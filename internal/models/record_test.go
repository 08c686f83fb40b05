package models

import (
	"encoding/json"
	"testing"
)

func TestRecordKeepsInsertionOrderInJSON(t *testing.T) {
	r := NewRecord()
	r.Set("summary", Text("ok"))
	r.Set("conditions", List("flu", "asthma"))
	r.Set("allergies", List())

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"summary":"ok","conditions":["flu","asthma"],"allergies":[]}`
	if string(b) != want {
		t.Fatalf("got %s want %s", b, want)
	}

	var back Record
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(r) {
		t.Fatalf("round trip mismatch: %s", back.String())
	}
}

func TestValueEmptiness(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Text(""), true},
		{Text("   "), true},
		{Text("x"), false},
		{List(), true},
		{List("", " "), true},
		{List("", "a"), false},
	}
	for i, tc := range cases {
		if got := tc.v.IsEmpty(); got != tc.want {
			t.Fatalf("case %d: IsEmpty=%v want %v", i, got, tc.want)
		}
	}
}

func TestLastTurnsCopiesTail(t *testing.T) {
	var history []Message
	for i := 0; i < 14; i++ {
		history = append(history, Message{Role: RoleUser, Content: string(rune('a' + i))})
	}
	tail := LastTurns(history, 10)
	if len(tail) != 10 || tail[0].Content != "e" {
		t.Fatalf("unexpected tail %+v", tail)
	}
	tail[0].Content = "changed"
	if history[4].Content != "e" {
		t.Fatalf("LastTurns must not alias input")
	}
}
