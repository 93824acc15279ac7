package wire

import (
	"fmt"
	"strings"

	"github.com/pchave/agentmarket/internal/agent"
)

// Sentiment of a news flash.
type Sentiment uint8

const (
	SentimentNeutral Sentiment = iota
	SentimentPositive
	SentimentNegative
)

func (s Sentiment) String() string {
	switch s {
	case SentimentPositive:
		return "POSITIVE"
	case SentimentNegative:
		return "NEGATIVE"
	default:
		return "NEUTRAL"
	}
}

// ParseSentiment decodes the wire form of a sentiment.
func ParseSentiment(s string) (Sentiment, error) {
	switch s {
	case "POSITIVE":
		return SentimentPositive, nil
	case "NEGATIVE":
		return SentimentNegative, nil
	case "NEUTRAL":
		return SentimentNeutral, nil
	default:
		return 0, fmt.Errorf("%w: sentiment %q", ErrMalformed, s)
	}
}

// Impact of a news flash.
type Impact uint8

const (
	ImpactLow Impact = iota
	ImpactMedium
	ImpactHigh
)

func (i Impact) String() string {
	switch i {
	case ImpactMedium:
		return "MEDIUM"
	case ImpactHigh:
		return "HIGH"
	default:
		return "LOW"
	}
}

// ParseImpact decodes the wire form of an impact level.
func ParseImpact(s string) (Impact, error) {
	switch s {
	case "LOW":
		return ImpactLow, nil
	case "MEDIUM":
		return ImpactMedium, nil
	case "HIGH":
		return ImpactHigh, nil
	default:
		return 0, fmt.Errorf("%w: impact %q", ErrMalformed, s)
	}
}

// NewsFlash is a synthetic news broadcast from the scenario controller.
type NewsFlash struct {
	Sentiment Sentiment
	Headline  string
	Impact    Impact
}

func (NewsFlash) Topic() agent.Topic { return agent.TopicNews }

func (p NewsFlash) Encode() string {
	return fmt.Sprintf("%s:%s:IMPACT:%s", p.Sentiment, p.Headline, p.Impact)
}

// ParseNewsFlash decodes a NEWS payload. Headlines may themselves
// contain colons, so the sentiment is cut from the front and the impact
// from the back.
func ParseNewsFlash(s string) (NewsFlash, error) {
	head, impactRaw, ok := cutLast(s, ":IMPACT:")
	if !ok {
		return NewsFlash{}, fmt.Errorf("%w: news %q", ErrMalformed, s)
	}
	sentRaw, headline, ok := strings.Cut(head, ":")
	if !ok {
		return NewsFlash{}, fmt.Errorf("%w: news %q", ErrMalformed, s)
	}
	sentiment, err := ParseSentiment(sentRaw)
	if err != nil {
		return NewsFlash{}, err
	}
	impact, err := ParseImpact(impactRaw)
	if err != nil {
		return NewsFlash{}, err
	}
	return NewsFlash{Sentiment: sentiment, Headline: headline, Impact: impact}, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
