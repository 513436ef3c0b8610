package reward

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCalculateWorkedExample(t *testing.T) {
	calc := New(DefaultOptions())
	m := Metrics{
		Views:                  1500,
		Likes:                  120,
		Comments:               15,
		Shares:                 8,
		AverageWatchPercentage: 65,
		SubscribersGained:      5,
		CTR:                    0.04,
	}

	reward, breakdown := calc.Calculate(m)

	if !almostEqual(reward, 0.72) {
		t.Fatalf("reward = %v, want 0.72", reward)
	}

	want := map[string]float64{
		"ctr_score":        0.16,
		"watch_score":      0.26,
		"engagement_score": 0.20,
		"growth_score":     0.10,
	}
	if len(breakdown) != len(want) {
		t.Fatalf("breakdown has %d entries, want %d: %v", len(breakdown), len(want), breakdown)
	}
	for name, contribution := range want {
		if !almostEqual(breakdown[name], contribution) {
			t.Errorf("%s = %v, want %v", name, breakdown[name], contribution)
		}
	}
}

func TestCalculateZeroViews(t *testing.T) {
	calc := New(DefaultOptions())
	m := Metrics{
		Views:                  0,
		Likes:                  50,
		Shares:                 10,
		AverageWatchPercentage: 80,
		SubscribersGained:      20,
	}

	reward, breakdown := calc.Calculate(m)

	if breakdown["engagement_score"] != 0 {
		t.Errorf("engagement_score = %v, want 0 when views is 0", breakdown["engagement_score"])
	}
	// watch 0.8*0.4 + growth saturated 1.0*0.2
	if !almostEqual(reward, 0.52) {
		t.Errorf("reward = %v, want 0.52", reward)
	}
}

func TestCalculateClampsOutOfRange(t *testing.T) {
	calc := New(DefaultOptions())

	m := Metrics{
		Views:                  10,
		Likes:                  10000,
		Comments:               10000,
		Shares:                 10000,
		AverageWatchPercentage: 250,
		SubscribersGained:      100000,
		CTR:                    0.9,
	}
	reward, breakdown := calc.Calculate(m)

	if reward != 1 {
		t.Errorf("reward = %v, want saturation at 1", reward)
	}
	for name, contribution := range breakdown {
		if contribution < 0 {
			t.Errorf("%s = %v, want non-negative", name, contribution)
		}
	}

	negative := Metrics{AverageWatchPercentage: -40, SentimentMean: -5}
	reward, breakdown = calc.Calculate(negative)
	if reward != 0 {
		t.Errorf("reward = %v, want 0 for all-negative metrics", reward)
	}
	if breakdown["watch_score"] != 0 {
		t.Errorf("watch_score = %v, want clamp to 0", breakdown["watch_score"])
	}
}

func TestCalculateMissingCTRScoresZero(t *testing.T) {
	calc := New(DefaultOptions())
	_, breakdown := calc.Calculate(Metrics{Views: 100, AverageWatchPercentage: 50})
	if breakdown["ctr_score"] != 0 {
		t.Errorf("ctr_score = %v, want 0 when CTR is absent", breakdown["ctr_score"])
	}
}

func TestSentimentSignal(t *testing.T) {
	opts := Options{
		CTRWeight:        0.15,
		WatchWeight:      0.35,
		EngagementWeight: 0.20,
		GrowthWeight:     0.15,
		SentimentWeight:  0.15,
		CTRTarget:        0.05,
		EngagementTarget: 0.10,
		GrowthTarget:     10,
	}
	calc := New(opts)

	_, breakdown := calc.Calculate(Metrics{SentimentMean: 1})
	if !almostEqual(breakdown["sentiment_score"], 0.15) {
		t.Errorf("sentiment_score = %v, want 0.15 for sentiment +1", breakdown["sentiment_score"])
	}

	_, breakdown = calc.Calculate(Metrics{SentimentMean: -1})
	if breakdown["sentiment_score"] != 0 {
		t.Errorf("sentiment_score = %v, want 0 for sentiment -1", breakdown["sentiment_score"])
	}

	_, breakdown = calc.Calculate(Metrics{})
	if !almostEqual(breakdown["sentiment_score"], 0.075) {
		t.Errorf("sentiment_score = %v, want half weight for neutral sentiment", breakdown["sentiment_score"])
	}

	// Default four-signal build carries no sentiment entry
	_, breakdown = New(DefaultOptions()).Calculate(Metrics{SentimentMean: 1})
	if _, ok := breakdown["sentiment_score"]; ok {
		t.Error("default calculator should not expose a sentiment signal")
	}
}

func TestEngagementRate(t *testing.T) {
	m := Metrics{Views: 1500, Likes: 120, Comments: 15, Shares: 8}
	if got := m.EngagementRate(); !almostEqual(got, 143.0/1500.0) {
		t.Errorf("EngagementRate() = %v, want %v", got, 143.0/1500.0)
	}
	if got := (Metrics{}).EngagementRate(); got != 0 {
		t.Errorf("EngagementRate() = %v, want 0 without views", got)
	}
}
