package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseRatingHalfPoints(t *testing.T) {
	for display := 1.0; display <= 10.0; display += 0.5 {
		r, err := ParseRating(display)
		if err != nil {
			t.Fatalf("ParseRating(%v) unexpected error: %v", display, err)
		}
		if int(r) < 2 || int(r) > 20 {
			t.Fatalf("ParseRating(%v) = %d, want within [2,20]", display, r)
		}
		if float64(r) != display*2 {
			t.Fatalf("ParseRating(%v) = %d, want %v", display, r, display*2)
		}
		if r.Display() != display {
			t.Fatalf("Display() = %v, want %v", r.Display(), display)
		}
	}
}

func TestParseRatingRejects(t *testing.T) {
	invalid := []float64{0, 0.5, 0.75, 3.3, 10.5, 11, -2, math.NaN(), math.Inf(1)}
	for _, v := range invalid {
		if _, err := ParseRating(v); !errors.Is(err, ErrInvalidRating) {
			t.Fatalf("ParseRating(%v) error = %v, want ErrInvalidRating", v, err)
		}
	}
}

func TestAverageOfEmptyHasNoValue(t *testing.T) {
	avg := AverageOf(AggregateState{})
	if avg.Valid {
		t.Fatalf("average of empty set should be invalid, got %+v", avg)
	}
	if avg.Display() != nil {
		t.Fatalf("Display() = %v, want nil", *avg.Display())
	}
}

func TestFoldIn(t *testing.T) {
	tests := []struct {
		name  string
		prior AggregateState
		add   Rating
		want  float64
	}{
		{"first review", AggregateState{}, 16, 8.0},
		{"existing 8 and 10 plus 6", AggregateState{Count: 2, SumStored: 36}, 12, 8.0},
		{"10 then 6", AggregateState{Count: 1, SumStored: 20}, 12, 8.0},
		{"floors to half points", AggregateState{Count: 1, SumStored: 16}, 17, 8.0},
		{"exact half point", AggregateState{Count: 1, SumStored: 16}, 18, 8.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FoldIn(tt.prior, tt.add).Display()
			if got == nil || *got != tt.want {
				t.Fatalf("FoldIn = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAverageFromDisplay(t *testing.T) {
	if AverageFromDisplay(nil).Valid {
		t.Fatalf("nil display should be invalid")
	}
	v := 7.5
	avg := AverageFromDisplay(&v)
	if !avg.Valid || avg.Stored != 15 {
		t.Fatalf("AverageFromDisplay(7.5) = %+v, want stored 15", avg)
	}
}
