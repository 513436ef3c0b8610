// Package reward converts video engagement metrics into scalar rewards in [0, 1].
package reward

import "math"

// Metrics holds the engagement metrics reported for a published video.
// Counters are totals since publication; CTR is optional and zero when unknown.
type Metrics struct {
	Views                  int64
	Likes                  int64
	Comments               int64
	Shares                 int64
	AverageWatchPercentage float64
	SubscribersGained      int64
	CTR                    float64 // clicks / impressions
	SentimentMean          float64 // mean comment sentiment in [-1, 1]
}

// EngagementRate returns (likes + comments + shares) / views, or 0 without views.
func (m Metrics) EngagementRate() float64 {
	if m.Views <= 0 {
		return 0
	}
	return float64(m.Likes+m.Comments+m.Shares) / float64(m.Views)
}

// Signal scores one aspect of performance in [0, 1] and carries its weight
// in the final reward.
type Signal struct {
	Name   string
	Weight float64
	Score  func(Metrics) float64
}

// Options configure the default signal set.
type Options struct {
	CTRWeight        float64
	WatchWeight      float64
	EngagementWeight float64
	GrowthWeight     float64
	SentimentWeight  float64 // 0 leaves the sentiment signal out

	CTRTarget        float64 // CTR earning a full ctr score
	EngagementTarget float64 // weighted engagement rate earning a full score
	GrowthTarget     float64 // subscribers gained earning a full growth score
}

// DefaultOptions returns the four-signal production weighting.
func DefaultOptions() Options {
	return Options{
		CTRWeight:        0.20,
		WatchWeight:      0.40,
		EngagementWeight: 0.20,
		GrowthWeight:     0.20,
		CTRTarget:        0.05,
		EngagementTarget: 0.10,
		GrowthTarget:     10,
	}
}

// Calculator folds weighted signals into a single reward.
type Calculator struct {
	signals []Signal
}

// New builds a calculator from the options. Comments weigh 5x and shares 10x
// a like inside the engagement signal; a non-zero sentiment weight appends
// the fifth signal used by sentiment-aware deployments.
func New(opts Options) *Calculator {
	signals := []Signal{
		{
			Name:   "ctr",
			Weight: opts.CTRWeight,
			Score: func(m Metrics) float64 {
				if opts.CTRTarget <= 0 {
					return 0
				}
				return m.CTR / opts.CTRTarget
			},
		},
		{
			Name:   "watch",
			Weight: opts.WatchWeight,
			Score: func(m Metrics) float64 {
				return m.AverageWatchPercentage / 100
			},
		},
		{
			Name:   "engagement",
			Weight: opts.EngagementWeight,
			Score: func(m Metrics) float64 {
				if m.Views <= 0 || opts.EngagementTarget <= 0 {
					return 0
				}
				weighted := float64(m.Likes+m.Comments*5+m.Shares*10) / float64(m.Views)
				return weighted / opts.EngagementTarget
			},
		},
		{
			Name:   "growth",
			Weight: opts.GrowthWeight,
			Score: func(m Metrics) float64 {
				if opts.GrowthTarget <= 0 {
					return 0
				}
				return float64(m.SubscribersGained) / opts.GrowthTarget
			},
		},
	}

	if opts.SentimentWeight > 0 {
		signals = append(signals, Signal{
			Name:   "sentiment",
			Weight: opts.SentimentWeight,
			Score: func(m Metrics) float64 {
				return (m.SentimentMean + 1) / 2
			},
		})
	}

	return &Calculator{signals: signals}
}

// NewWithSignals builds a calculator from an explicit signal set.
func NewWithSignals(signals []Signal) *Calculator {
	return &Calculator{signals: signals}
}

// Calculate returns the total reward clamped to [0, 1] and the weighted
// contribution of each signal keyed by "<name>_score". Signal scores are
// clamped to [0, 1] before weighting, so out-of-range metrics saturate
// instead of failing.
func (c *Calculator) Calculate(m Metrics) (float64, map[string]float64) {
	breakdown := make(map[string]float64, len(c.signals))
	var total float64
	for _, s := range c.signals {
		contribution := s.Weight * clamp01(s.Score(m))
		breakdown[s.Name+"_score"] = contribution
		total += contribution
	}
	return clamp01(total), breakdown
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
