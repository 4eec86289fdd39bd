package dialogue

import (
	"reflect"
	"testing"
)

func TestParseRoundJSON(t *testing.T) {
	raw := `{"dialogue":[{"id":1,"user":"M","text":"Welcome back."},{"id":2,"user":"F","text":"Great to be here."}]}`
	got := ParseRound(raw)
	want := []Turn{
		{Speaker: RoleMale, Text: "Welcome back."},
		{Speaker: RoleFemale, Text: "Great to be here."},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseRoundFencedJSON(t *testing.T) {
	raw := "Sure, here is the dialogue:\n```json\n{\"dialogue\":[{\"user\":\"F\",\"text\":\"Hello!\"}]}\n```"
	got := ParseRound(raw)
	if len(got) != 1 || got[0].Speaker != RoleFemale || got[0].Text != "Hello!" {
		t.Fatalf("unexpected turns: %v", got)
	}
}

func TestParseRoundSpeakerKey(t *testing.T) {
	raw := `{"dialogue":[{"speaker":"male","text":"Using the other key."}]}`
	got := ParseRound(raw)
	if len(got) != 1 || got[0].Speaker != RoleMale {
		t.Fatalf("unexpected turns: %v", got)
	}
}

func TestParseRoundFallbackMarkers(t *testing.T) {
	raw := `Here is a conversation.
M: First point.
f: Agreeing in lowercase.
Female: Full word marker.
男: Localized male marker.
女： Full-width colon too.
Narrator: should be dropped.
no marker line`
	got := ParseRound(raw)
	want := []Turn{
		{Speaker: RoleMale, Text: "First point."},
		{Speaker: RoleFemale, Text: "Agreeing in lowercase."},
		{Speaker: RoleFemale, Text: "Full word marker."},
		{Speaker: RoleMale, Text: "Localized male marker."},
		{Speaker: RoleFemale, Text: "Full-width colon too."},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseRoundDropsEmptyAndUnknown(t *testing.T) {
	raw := `{"dialogue":[{"user":"M","text":"  "},{"user":"X","text":"mystery"},{"user":"F","text":"kept"}]}`
	got := ParseRound(raw)
	if len(got) != 1 || got[0].Text != "kept" {
		t.Fatalf("unexpected turns: %v", got)
	}
}

func TestParseRoundNothingUsable(t *testing.T) {
	if got := ParseRound("total garbage with no structure"); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := ParseRound(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestRenumber(t *testing.T) {
	turns := []Turn{{ID: 7}, {ID: 2}, {ID: 9}}
	Renumber(turns)
	for i, turn := range turns {
		if turn.ID != i+1 {
			t.Fatalf("expected contiguous ids, got %v", turns)
		}
	}
}
