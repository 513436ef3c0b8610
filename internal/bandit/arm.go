// Package bandit implements Thompson Sampling over per-combination Beta
// posteriors. Every (place, verb, scenario) combination owns one arm,
// created lazily on first sight and never deleted.
package bandit

import (
	"math"
	"strings"
	"time"

	"hfbpo/pkg/errors"
)

// KeySeparator joins the parts of a combination key.
const KeySeparator = "|"

// MakeKey builds the canonical "place|verb|scenario" combination key.
// Identical triples always produce identical keys.
func MakeKey(place, verb, scenario string) string {
	return place + KeySeparator + verb + KeySeparator + scenario
}

// SplitKey breaks a combination key into its parts. Keys that do not split
// into exactly three parts report ok=false.
func SplitKey(key string) (place, verb, scenario string, ok bool) {
	parts := strings.Split(key, KeySeparator)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// Arm is one combination's Beta(alpha, beta) posterior over reward.
type Arm struct {
	Key         string    `json:"key"`
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	PullCount   int       `json:"pulls"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// NewArm returns the uniform-prior arm Beta(1, 1) for a key.
func NewArm(key string) Arm {
	return Arm{Key: key, Alpha: 1, Beta: 1}
}

// MeanReward returns the posterior mean alpha / (alpha + beta).
func (a Arm) MeanReward() float64 {
	return a.Alpha / (a.Alpha + a.Beta)
}

// applyReward folds one reward observation into the posterior.
func (a Arm) applyReward(reward float64, now time.Time) Arm {
	a.Alpha += reward
	a.Beta += 1 - reward
	a.PullCount++
	a.LastUpdated = now
	return a
}

// ValidateReward checks that a reward is finite and within [0, 1].
func ValidateReward(key string, reward float64) error {
	if math.IsNaN(reward) || math.IsInf(reward, 0) || reward < 0 || reward > 1 {
		return errors.NewInvalidReward(key, reward)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
