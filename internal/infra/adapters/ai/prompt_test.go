package ai

import (
	"strings"
	"testing"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

func TestParseClassification(t *testing.T) {
	t.Run("fenced JSON with extras", func(t *testing.T) {
		in := "```json\n{\"response\":\" hi there \",\"crisis_level\":\"HIGH\",\"sentiment\":\"negative\"," +
			"\"message_type\":\"crisis\",\"topics\":[\"school\",\"aliens\"],\"wellness_score\":3}\n```"
		c, err := parseClassification(in)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if c.Response != "hi there" || c.CrisisLevel != model.CrisisHigh || c.Sentiment != model.SentimentNegative {
			t.Fatalf("got %+v", c)
		}
		if len(c.Topics) != 1 || c.Topics[0] != model.TopicSchool {
			t.Fatalf("topics = %v", c.Topics)
		}
		if c.WellnessScore == nil || *c.WellnessScore != 3 {
			t.Fatalf("wellness = %v", c.WellnessScore)
		}
	})

	t.Run("defaults and clamping", func(t *testing.T) {
		c, err := parseClassification(`{"response":"ok","wellness_score":42,"message_type":"weird"}`)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if c.CrisisLevel != model.CrisisNone || c.MessageType != model.MessageGeneral || c.WellnessScore != nil {
			t.Fatalf("got %+v", c)
		}
	})

	for name, in := range map[string]string{
		"no json":        "sorry, I can't",
		"empty response": `{"response":"","crisis_level":"none"}`,
		"unknown level":  `{"response":"ok","crisis_level":"severe"}`,
		"broken json":    `{"response":"ok",}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := parseClassification(in); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildConversation_TrimsOldestHistory(t *testing.T) {
	var nilCounter *TokenCounter // heuristic only
	history := []adapter.Message{
		{Role: "user", Content: strings.Repeat("a", 400)},
		{Role: "assistant", Content: strings.Repeat("b", 400)},
		{Role: "user", Content: "recent"},
	}
	req := adapter.ClassifyRequest{Message: "now", History: history}
	base := heuristicTokens(systemPrompt) + heuristicTokens("now")

	convo, _ := buildConversation(req, nilCounter, base+heuristicTokens("recent")+4+heuristicTokens(history[1].Content)+4)
	if len(convo) != 3 || convo[0].Content != history[1].Content || convo[2].Content != "now" {
		t.Fatalf("convo = %+v", convo)
	}

	convo, _ = buildConversation(req, nilCounter, 0)
	if len(convo) != 1 || convo[0].Role != "user" {
		t.Fatalf("with no budget only the message is sent: %+v", convo)
	}
}
