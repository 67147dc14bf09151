package vectors

import (
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       interface{}
		expectDim int
		want      Vector
		wantErr   bool
	}{
		{
			name: "nil input is absent, not an error",
			raw:  nil,
			want: nil,
		},
		{
			name: "native float64 slice",
			raw:  []float64{0.1, 0.2, 0.3},
			want: Vector{0.1, 0.2, 0.3},
		},
		{
			name: "float32 slice widened",
			raw:  []float32{1, 2},
			want: Vector{1, 2},
		},
		{
			name: "bson interface slice",
			raw:  []interface{}{float64(0.5), float64(-0.5)},
			want: Vector{0.5, -0.5},
		},
		{
			name: "legacy JSON string",
			raw:  "[0.25, 0.75]",
			want: Vector{0.25, 0.75},
		},
		{
			name: "empty string is absent",
			raw:  "",
			want: nil,
		},
		{
			name:    "unparsable string is malformed",
			raw:     "not a vector",
			wantErr: true,
		},
		{
			name:      "wrong dimensionality is malformed",
			raw:       []float64{1, 2, 3},
			expectDim: 2,
			wantErr:   true,
		},
		{
			name:    "unsupported element type is malformed",
			raw:     []interface{}{"0.5"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw, tt.expectDim)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-9 {
					t.Errorf("element %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
		want float64
	}{
		{"identical", Vector{1, 0}, Vector{1, 0}, 1.0},
		{"orthogonal", Vector{1, 0}, Vector{0, 1}, 0.0},
		{"opposite", Vector{1, 0}, Vector{-1, 0}, -1.0},
		{"zero vector", Vector{0, 0}, Vector{1, 0}, 0.0},
		{"length mismatch", Vector{1, 0}, Vector{1, 0, 0}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEuclidean(t *testing.T) {
	if got := Euclidean(Vector{0, 0}, Vector{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("expected 5, got %v", got)
	}
	if got := Euclidean(Vector{1}, Vector{1, 2}); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf for mismatched lengths, got %v", got)
	}
}

func TestBlend(t *testing.T) {
	// First observation seeds the vector directly.
	seeded := Blend(nil, Vector{1, 0}, 0.2)
	if seeded[0] != 1 || seeded[1] != 0 {
		t.Errorf("expected seed [1 0], got %v", seeded)
	}

	// EMA step: 0.2*[0,1] + 0.8*[1,0] = [0.8, 0.2]
	blended := Blend(Vector{1, 0}, Vector{0, 1}, 0.2)
	if math.Abs(blended[0]-0.8) > 1e-9 || math.Abs(blended[1]-0.2) > 1e-9 {
		t.Errorf("expected [0.8 0.2], got %v", blended)
	}

	// Mismatched signal leaves the base untouched.
	kept := Blend(Vector{1, 0}, Vector{1}, 0.2)
	if kept[0] != 1 || kept[1] != 0 {
		t.Errorf("expected base unchanged, got %v", kept)
	}
}

func TestMean(t *testing.T) {
	got := Mean([]Vector{{0, 0}, {2, 4}})
	if got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
	if Mean(nil) != nil {
		t.Error("expected nil centroid for empty input")
	}
}
