package core

import "testing"

func TestBounds_Center(t *testing.T) {
	tests := []struct {
		bounds    Bounds
		expectedX int
		expectedY int
	}{
		{Bounds{X: 0, Y: 0, Width: 100, Height: 100}, 50, 50},
		{Bounds{X: 10, Y: 20, Width: 100, Height: 200}, 60, 120},
		{Bounds{X: 0, Y: 0, Width: 0, Height: 0}, 0, 0},
	}

	for _, tt := range tests {
		x, y := tt.bounds.Center()
		if x != tt.expectedX || y != tt.expectedY {
			t.Errorf("Bounds%+v.Center() = (%d, %d), want (%d, %d)",
				tt.bounds, x, y, tt.expectedX, tt.expectedY)
		}
	}
}

func TestBounds_Contains(t *testing.T) {
	bounds := Bounds{X: 10, Y: 10, Width: 100, Height: 100}

	tests := []struct {
		x, y     int
		expected bool
	}{
		{50, 50, true},    // Center
		{10, 10, true},    // Top-left corner
		{109, 109, true},  // Just inside bottom-right
		{110, 110, false}, // Exactly at boundary (exclusive)
		{0, 0, false},     // Outside
		{200, 200, false}, // Far outside
	}

	for _, tt := range tests {
		if got := bounds.Contains(tt.x, tt.y); got != tt.expected {
			t.Errorf("Bounds.Contains(%d, %d) = %v, want %v", tt.x, tt.y, got, tt.expected)
		}
	}
}

func TestBounds_Area(t *testing.T) {
	tests := []struct {
		bounds Bounds
		want   int
	}{
		{Bounds{Width: 10, Height: 20}, 200},
		{Bounds{Width: 0, Height: 20}, 0},
		{Bounds{Width: -5, Height: 20}, 0},
	}

	for _, tt := range tests {
		if got := tt.bounds.Area(); got != tt.want {
			t.Errorf("Bounds%+v.Area() = %d, want %d", tt.bounds, got, tt.want)
		}
	}
}

func TestBounds_Overlaps(t *testing.T) {
	a := Bounds{X: 0, Y: 0, Width: 100, Height: 100}

	tests := []struct {
		name string
		b    Bounds
		want bool
	}{
		{"inside", Bounds{X: 10, Y: 10, Width: 10, Height: 10}, true},
		{"partial", Bounds{X: 90, Y: 90, Width: 50, Height: 50}, true},
		{"touching edge", Bounds{X: 100, Y: 0, Width: 50, Height: 50}, false},
		{"disjoint", Bounds{X: 300, Y: 300, Width: 10, Height: 10}, false},
		{"zero area", Bounds{X: 10, Y: 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps(%+v) = %v, want %v", tt.b, got, tt.want)
			}
			if got := tt.b.Overlaps(a); got != tt.want {
				t.Errorf("Overlaps is not symmetric for %+v", tt.b)
			}
		})
	}
}
