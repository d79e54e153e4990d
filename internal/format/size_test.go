package format

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.0 B"},
		{512, "512.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{10 * 1024 * 1024, "10.0 MB"},
		{4 * 1024 * 1024 * 1024, "4.0 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Size(tt.size); got != tt.want {
				t.Errorf("Size(%d) = %q, want %q", tt.size, got, tt.want)
			}
		})
	}
}

func TestBar(t *testing.T) {
	tests := []struct {
		percent    float64
		wantFilled int
	}{
		{0, 0},
		{4.9, 0},
		{5, 1},
		{50, 10},
		{99, 19},
		{100, 20},
		{150, 20},
		{-5, 0},
	}

	for _, tt := range tests {
		bar := Bar(tt.percent)
		if n := utf8.RuneCountInString(bar); n != BarWidth {
			t.Errorf("Bar(%v) width = %d, want %d", tt.percent, n, BarWidth)
		}
		if filled := strings.Count(bar, "█"); filled != tt.wantFilled {
			t.Errorf("Bar(%v) filled = %d, want %d", tt.percent, filled, tt.wantFilled)
		}
	}
}
