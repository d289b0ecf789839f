// Package sm2 implements the SM-2 spaced repetition scheduling algorithm.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidGrade is returned for grades outside 0..5.
var ErrInvalidGrade = errors.New("sm2: invalid grade")

const (
	// MinEfactor is the floor for the easiness factor.
	MinEfactor = 1.3
	// DefaultEfactor is the easiness factor of a never-reviewed record.
	DefaultEfactor = 2.5
	// PassingGrade is the lowest grade that counts as a successful recall.
	PassingGrade Grade = 3
)

// Grade is the quality of a recall, from 0 (blackout) to 5 (perfect).
type Grade int

// IsValid reports whether g is within 0..5.
func (g Grade) IsValid() bool {
	return g >= 0 && g <= 5
}

// Passed reports whether g counts as a successful recall.
func (g Grade) Passed() bool {
	return g >= PassingGrade
}

func (g Grade) String() string {
	if !g.IsValid() {
		return fmt.Sprintf("Grade(%d)", int(g))
	}
	return fmt.Sprintf("%d", int(g))
}

// State is the scheduling state of a record after a review.
type State struct {
	Interval   int // days until the next review
	Repetition int // consecutive successful reviews
	Efactor    float64
	DueDate    time.Time
}

// NextState computes the scheduling state after a review graded g. repetition
// is the number of consecutive passes so far, efactor the current easiness
// factor and interval the current interval in days. The due date is now plus
// the new interval in calendar days.
func NextState(g Grade, repetition int, efactor float64, interval int, now time.Time) (State, error) {
	if !g.IsValid() {
		return State{}, fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}

	var next State
	if g.Passed() {
		switch repetition {
		case 0:
			next.Interval = 1
		case 1:
			next.Interval = 6
		default:
			next.Interval = int(math.Round(float64(interval) * efactor))
		}
		next.Repetition = repetition + 1
	} else {
		// A failed recall starts the record over.
		next.Interval = 1
		next.Repetition = 0
	}

	next.Efactor = NextEfactor(g, efactor)
	next.DueDate = now.AddDate(0, 0, next.Interval)
	return next, nil
}

// NextEfactor adjusts the easiness factor for grade g, never going below
// MinEfactor.
func NextEfactor(g Grade, efactor float64) float64 {
	q := float64(5 - g)
	ef := efactor + (0.1 - q*(0.08+q*0.02))
	return math.Max(ef, MinEfactor)
}
