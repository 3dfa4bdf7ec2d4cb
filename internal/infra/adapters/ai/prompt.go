package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

const systemPrompt = `You are a supportive, non-judgemental listener for young people.
Reply briefly and warmly. Never give medical diagnoses. If the person may be in danger,
encourage them to contact the 988 Suicide & Crisis Lifeline or local emergency services.

Return ONLY a JSON object with these fields:
  "response":       your reply to the person (string, required)
  "crisis_level":   one of "none","low","medium","high","immediate"
  "sentiment":      one of "positive","neutral","negative","crisis"
  "message_type":   one of "general","crisis","wellness","resource_request"
  "topics":         array drawn from "anxiety","depression","stress","relationships","school","family","identity","other"
  "wellness_score": integer 1-10 estimating how the person is doing, or null`

var errEmptyResponse = errors.New("classifier returned no response text")

type rawClassification struct {
	Response      string   `json:"response"`
	CrisisLevel   string   `json:"crisis_level"`
	Sentiment     string   `json:"sentiment"`
	MessageType   string   `json:"message_type"`
	Topics        []string `json:"topics"`
	WellnessScore *int     `json:"wellness_score"`
}

// parseClassification extracts the JSON object from a model reply. Unknown
// optional labels are dropped; an unknown crisis level fails the whole reply
// since it cannot be ranked.
func parseClassification(text string) (adapter.Classification, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return adapter.Classification{}, fmt.Errorf("no JSON object in classifier reply")
	}
	var raw rawClassification
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return adapter.Classification{}, fmt.Errorf("decode classifier reply: %w", err)
	}
	if strings.TrimSpace(raw.Response) == "" {
		return adapter.Classification{}, errEmptyResponse
	}
	level, ok := model.ParseCrisisLevel(raw.CrisisLevel)
	if !ok {
		return adapter.Classification{}, fmt.Errorf("unknown crisis level %q", raw.CrisisLevel)
	}
	c := adapter.Classification{
		Response:    strings.TrimSpace(raw.Response),
		CrisisLevel: level,
	}
	if s := model.Sentiment(strings.ToLower(raw.Sentiment)); s.Valid() {
		c.Sentiment = s
	}
	if t := model.MessageType(strings.ToLower(raw.MessageType)); t.Valid() {
		c.MessageType = t
	} else {
		c.MessageType = model.MessageGeneral
	}
	for _, t := range raw.Topics {
		if tp := model.Topic(strings.ToLower(t)); tp.Valid() {
			c.Topics = append(c.Topics, tp)
		}
	}
	if raw.WellnessScore != nil && *raw.WellnessScore >= 1 && *raw.WellnessScore <= 10 {
		v := *raw.WellnessScore
		c.WellnessScore = &v
	}
	return c, nil
}

// buildConversation trims history from the oldest end until the prompt fits
// maxTokens, then appends the current message.
func buildConversation(req adapter.ClassifyRequest, counter *TokenCounter, maxTokens int) ([]adapter.Message, int) {
	budget := maxTokens - counter.Count(systemPrompt) - counter.Count(req.Message)
	history := req.History
	used := 0
	keep := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		n := counter.Count(history[i].Content) + 4
		if used+n > budget {
			break
		}
		used += n
		keep = i
	}
	out := make([]adapter.Message, 0, len(history)-keep+1)
	out = append(out, history[keep:]...)
	out = append(out, adapter.Message{Role: "user", Content: req.Message})
	return out, used + counter.Count(systemPrompt) + counter.Count(req.Message)
}

func contextNote(sc adapter.SessionContext) string {
	aud := sc.Audience
	if aud == "" {
		aud = "youth"
	}
	lvl := sc.CrisisLevel
	if lvl == "" {
		lvl = model.CrisisNone
	}
	return fmt.Sprintf("Audience: %s. Highest crisis level seen so far in this conversation: %s.", aud, lvl)
}
