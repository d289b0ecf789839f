package sm2

import (
	"errors"
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func TestNextState(t *testing.T) {
	testCases := []struct {
		name           string
		grade          Grade
		repetition     int
		efactor        float64
		interval       int
		wantInterval   int
		wantRepetition int
	}{
		{name: "first pass", grade: 4, repetition: 0, efactor: 2.5, interval: 1, wantInterval: 1, wantRepetition: 1},
		{name: "second pass", grade: 4, repetition: 1, efactor: 2.5, interval: 1, wantInterval: 6, wantRepetition: 2},
		{name: "third pass multiplies", grade: 5, repetition: 2, efactor: 2.5, interval: 6, wantInterval: 15, wantRepetition: 3},
		{name: "fail resets", grade: 1, repetition: 3, efactor: 2.0, interval: 15, wantInterval: 1, wantRepetition: 0},
		{name: "borderline pass", grade: 3, repetition: 4, efactor: 1.3, interval: 10, wantInterval: 13, wantRepetition: 5},
		{name: "blackout", grade: 0, repetition: 0, efactor: 2.5, interval: 1, wantInterval: 1, wantRepetition: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextState(tc.grade, tc.repetition, tc.efactor, tc.interval, t0)
			if err != nil {
				t.Fatalf("NextState returned an unexpected error: %v", err)
			}
			if got.Interval != tc.wantInterval {
				t.Errorf("Interval = %d, want %d", got.Interval, tc.wantInterval)
			}
			if got.Repetition != tc.wantRepetition {
				t.Errorf("Repetition = %d, want %d", got.Repetition, tc.wantRepetition)
			}
			wantDue := t0.AddDate(0, 0, tc.wantInterval)
			if !got.DueDate.Equal(wantDue) {
				t.Errorf("DueDate = %v, want %v", got.DueDate, wantDue)
			}
			if got.Efactor < MinEfactor {
				t.Errorf("Efactor %.3f dropped below the floor", got.Efactor)
			}
		})
	}
}

func TestEfactorAdjustments(t *testing.T) {
	perfect, _ := NextState(5, 2, 2.5, 6, t0)
	if math.Abs(perfect.Efactor-2.6) > 1e-9 {
		t.Errorf("Expected grade 5 to raise efactor to 2.6, got %.4f", perfect.Efactor)
	}

	good, _ := NextState(4, 2, 2.5, 6, t0)
	if math.Abs(good.Efactor-2.5) > 1e-9 {
		t.Errorf("Expected grade 4 to keep efactor at 2.5, got %.4f", good.Efactor)
	}

	fail, _ := NextState(1, 3, 2.0, 15, t0)
	if math.Abs(fail.Efactor-1.46) > 1e-9 {
		t.Errorf("Expected grade 1 to lower efactor to 1.46, got %.4f", fail.Efactor)
	}
}

func TestEfactorFloor(t *testing.T) {
	ef := DefaultEfactor
	rep, ivl := 0, 1
	for i := 0; i < 20; i++ {
		s, err := NextState(0, rep, ef, ivl, t0)
		if err != nil {
			t.Fatalf("NextState: %v", err)
		}
		if s.Efactor < MinEfactor {
			t.Fatalf("iteration %d: efactor %.4f below %.1f", i, s.Efactor, MinEfactor)
		}
		ef, rep, ivl = s.Efactor, s.Repetition, s.Interval
	}
	if ef != MinEfactor {
		t.Errorf("Expected repeated failures to settle at the floor, got %.4f", ef)
	}
}

func TestNextStateInvalidGrade(t *testing.T) {
	for _, g := range []Grade{-1, 6, 42} {
		if _, err := NextState(g, 0, 2.5, 1, t0); !errors.Is(err, ErrInvalidGrade) {
			t.Errorf("grade %d: expected ErrInvalidGrade, got %v", g, err)
		}
	}
}

func TestNextStateCalendarDays(t *testing.T) {
	// Due dates advance by calendar days, so a month boundary is crossed cleanly.
	now := time.Date(2025, 1, 28, 23, 30, 0, 0, time.UTC)
	s, err := NextState(4, 1, 2.5, 1, now)
	if err != nil {
		t.Fatalf("NextState: %v", err)
	}
	want := time.Date(2025, 2, 3, 23, 30, 0, 0, time.UTC)
	if !s.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", s.DueDate, want)
	}
}
