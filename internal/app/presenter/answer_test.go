package presenter

import (
	"testing"

	"github.com/pulsefeed/project/internal/app/curated"
	"github.com/pulsefeed/project/internal/app/feed"
	"github.com/pulsefeed/project/internal/app/pulse"
)

func TestParseAnswer(t *testing.T) {
	rating := feed.Item{Type: pulse.SourceResourceRating, Rating: &feed.RatingPayload{MinRating: 1, MaxRating: 5}}
	choice := feed.Item{Type: pulse.SourceDailyQuestion, Question: &curated.Question{Prompt: "Mood?", Options: []string{"Calm", "Busy"}}}
	info := feed.Item{Type: pulse.SourceDailyInfo, Info: &curated.InfoCard{Title: "Hydrate"}}

	cases := []struct {
		item  feed.Item
		input string
		want  string
	}{
		{rating, " 4 ", `4`},
		{choice, "2", `"Busy"`},
		{choice, "Calm", `"Calm"`},
		{info, "Y", `"yes"`},
		{info, "no", `"no"`},
	}
	for _, tc := range cases {
		got, err := ParseAnswer(tc.item, tc.input)
		if err != nil {
			t.Fatalf("ParseAnswer(%q) returned error: %v", tc.input, err)
		}
		if string(got) != tc.want {
			t.Fatalf("ParseAnswer(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}

	if _, err := ParseAnswer(rating, "great"); err == nil {
		t.Fatalf("expected error for non-numeric rating")
	}
	if _, err := ParseAnswer(info, "maybe"); err == nil {
		t.Fatalf("expected error for non yes/no answer")
	}
	if _, err := ParseAnswer(info, "  "); err == nil {
		t.Fatalf("expected error for empty answer")
	}
}

func TestAutoAnswerIsValid(t *testing.T) {
	items := []feed.Item{
		{Type: pulse.SourceResourceRating, Rating: &feed.RatingPayload{MinRating: 1, MaxRating: 5}},
		{Type: pulse.SourceConnectionFeedback, Connection: &feed.ConnectionPayload{ConnectionUserID: "u"}},
		{Type: pulse.SourceDailyQuestion, Question: &curated.Question{Options: []string{"Calm"}}},
	}
	if _, err := pulse.NormalizeValue(items[0].Type, AutoAnswer(items[0])); err != nil {
		t.Fatalf("rating auto answer rejected: %v", err)
	}
	if _, err := pulse.NormalizeValue(items[1].Type, AutoAnswer(items[1])); err != nil {
		t.Fatalf("connection auto answer rejected: %v", err)
	}
	if string(AutoAnswer(items[2])) != `"Calm"` {
		t.Fatalf("unexpected question auto answer: %s", AutoAnswer(items[2]))
	}
}
