package services

import (
	"errors"
	"strings"
	"testing"

	"cohort/internal/models"
)

func TestBuildIdentityText(t *testing.T) {
	p := &models.Profile{
		Background: "Ten years in distributed systems engineering",
		Expertise:  "Go, Kafka, stream processing",
		Interests:  "mentoring, climbing",
		AvailabilityTags: []string{"open-to-mentoring"},
	}

	text, err := BuildIdentityText(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stable labeled order
	if !strings.HasPrefix(text, "Background: Ten years") {
		t.Errorf("expected background first, got %q", text)
	}
	if !strings.Contains(text, "Expertise: Go, Kafka") {
		t.Errorf("expected labeled expertise, got %q", text)
	}
	if !strings.Contains(text, "Interests: mentoring") {
		t.Errorf("expected labeled interests, got %q", text)
	}

	// Availability must never leak into the identity embedding
	if strings.Contains(text, "open-to-mentoring") {
		t.Errorf("availability tags leaked into identity text: %q", text)
	}
}

func TestBuildIdentityTextOmitsEmptyInterests(t *testing.T) {
	p := &models.Profile{
		Background: "Product designer with a systems background",
		Expertise:  "Design systems, Figma",
	}

	text, err := BuildIdentityText(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "Interests:") {
		t.Errorf("empty interests should be omitted, got %q", text)
	}
}

func TestCheckEligibility(t *testing.T) {
	tests := []struct {
		name       string
		background string
		expertise  string
		eligible   bool
	}{
		{
			name:       "complete profile",
			background: "Backend engineer focused on payments infrastructure",
			expertise:  "Go, PostgreSQL, ledgers",
			eligible:   true,
		},
		{
			name:       "background too short",
			background: "Engineer",
			expertise:  "Go, PostgreSQL, ledgers",
			eligible:   false,
		},
		{
			name:       "expertise too short",
			background: "Backend engineer focused on payments infrastructure",
			expertise:  "Go",
			eligible:   false,
		},
		{
			name:       "placeholder background",
			background: "Not specified",
			expertise:  "Go, PostgreSQL, ledgers",
			eligible:   false,
		},
		{
			name:       "placeholder expertise mixed case",
			background: "Backend engineer focused on payments infrastructure",
			expertise:  "TBD",
			eligible:   false,
		},
		{
			name:       "blank profile",
			background: "",
			expertise:  "",
			eligible:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckEligibility(&models.Profile{
				Background: tt.background,
				Expertise:  tt.expertise,
			})
			if tt.eligible && err != nil {
				t.Errorf("expected eligible, got %v", err)
			}
			if !tt.eligible {
				if err == nil {
					t.Fatal("expected ineligible")
				}
				if !errors.Is(err, ErrDataInsufficiency) {
					t.Errorf("expected ErrDataInsufficiency, got %v", err)
				}
			}
		})
	}
}
