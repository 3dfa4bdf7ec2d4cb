package ai

import (
	"context"
	"strings"

	"mindspace/internal/domain/model"
	"mindspace/internal/domain/ports/adapter"
)

var _ adapter.Classifier = (*KeywordClassifier)(nil)

// KeywordClassifier is an offline classifier driven by phrase lists. It runs
// in development and as the fallback when no model provider answers.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

func (KeywordClassifier) Name() string { return "keyword" }

// ordered most severe first; the first hit wins
var crisisPhrases = []struct {
	level   model.CrisisLevel
	phrases []string
}{
	{model.CrisisImmediate, []string{"kill myself", "end my life", "want to die", "going to die tonight", "suicide", "overdose", "goodbye forever"}},
	{model.CrisisHigh, []string{"self harm", "self-harm", "cutting myself", "hurt myself", "no reason to live", "better off without me"}},
	{model.CrisisMedium, []string{"hopeless", "worthless", "can't go on", "cant go on", "can't cope", "panic attack", "nobody cares"}},
	{model.CrisisLow, []string{"sad", "lonely", "alone", "anxious", "stressed", "overwhelmed", "crying"}},
}

var topicPhrases = map[model.Topic][]string{
	model.TopicAnxiety:       {"anxious", "anxiety", "panic", "worried", "nervous"},
	model.TopicDepression:    {"depressed", "depression", "hopeless", "empty", "numb"},
	model.TopicStress:        {"stress", "stressed", "overwhelmed", "pressure"},
	model.TopicRelationships: {"friend", "boyfriend", "girlfriend", "partner", "breakup", "crush"},
	model.TopicSchool:        {"school", "exam", "homework", "teacher", "grades", "class"},
	model.TopicFamily:        {"mom", "dad", "parent", "brother", "sister", "family"},
	model.TopicIdentity:      {"identity", "gender", "sexuality", "who i am"},
}

var (
	resourcePhrases = []string{"hotline", "therapist", "counselor", "resources", "where can i get help", "who can i talk to"}
	wellnessPhrases = []string{"breathing", "meditation", "sleep", "exercise", "journal", "relax"}
	positivePhrases = []string{"happy", "better", "good", "great", "grateful", "excited", "proud"}
)

func (KeywordClassifier) Classify(ctx context.Context, req adapter.ClassifyRequest) (adapter.Classification, error) {
	if err := ctx.Err(); err != nil {
		return adapter.Classification{}, err
	}
	text := strings.ToLower(req.Message)
	c := adapter.Classification{CrisisLevel: model.CrisisNone, MessageType: model.MessageGeneral}

	for _, cp := range crisisPhrases {
		if containsAny(text, cp.phrases) {
			c.CrisisLevel = cp.level
			break
		}
	}
	for _, t := range []model.Topic{model.TopicAnxiety, model.TopicDepression, model.TopicStress,
		model.TopicRelationships, model.TopicSchool, model.TopicFamily, model.TopicIdentity} {
		if containsAny(text, topicPhrases[t]) {
			c.Topics = append(c.Topics, t)
		}
	}

	switch {
	case c.CrisisLevel.Rank() >= model.CrisisHigh.Rank():
		c.Sentiment = model.SentimentCrisis
		c.MessageType = model.MessageCrisis
	case c.CrisisLevel != model.CrisisNone:
		c.Sentiment = model.SentimentNegative
	case containsAny(text, positivePhrases):
		c.Sentiment = model.SentimentPositive
	default:
		c.Sentiment = model.SentimentNeutral
	}
	if c.MessageType == model.MessageGeneral {
		switch {
		case containsAny(text, resourcePhrases):
			c.MessageType = model.MessageResourceRequest
		case containsAny(text, wellnessPhrases):
			c.MessageType = model.MessageWellness
		}
	}
	c.Response = cannedReply(c)
	return c, nil
}

func cannedReply(c adapter.Classification) string {
	switch {
	case c.CrisisLevel == model.CrisisImmediate:
		return "I'm really concerned about your safety right now. Please call or text 988 (Suicide & Crisis Lifeline) or your local emergency number. You don't have to go through this alone."
	case c.CrisisLevel == model.CrisisHigh:
		return "It sounds like you're in a lot of pain. You can reach the 988 Suicide & Crisis Lifeline any time, day or night. Would you like to tell me more about what's happening?"
	case c.MessageType == model.MessageResourceRequest:
		return "There are people who can help: a school counselor, a trusted adult, or the 988 Lifeline. Would you like some ideas for where to start?"
	case c.MessageType == model.MessageWellness:
		return "Taking care of yourself matters. A few slow breaths, a short walk or writing things down can help. What usually helps you feel a bit calmer?"
	case c.CrisisLevel != model.CrisisNone:
		return "Thank you for sharing that with me. It makes sense to feel this way. What's been weighing on you the most?"
	case c.Sentiment == model.SentimentPositive:
		return "That's good to hear! What's been helping?"
	default:
		return "I'm here to listen. Tell me more about how you're feeling."
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
