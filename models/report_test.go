package models

import (
	"encoding/json"
	"testing"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"Pothole", CategoryPothole},
		{"pothole", CategoryPothole},
		{"  STREET LIGHT OUTAGE ", CategoryStreetLight},
		{"accumulated garbage", CategoryGarbage},
		{"Graffiti", CategoryOther},
		{"", CategoryOther},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeCategory(tt.in); got != tt.expected {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestSeverityUnmarshal(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected Severity
	}{
		{"integer", `{"severity": 7}`, 7},
		{"fraction rounds", `{"severity": 6.6}`, 7},
		{"numeric string", `{"severity": "8"}`, 8},
		{"above range clamps", `{"severity": 42}`, MaxSeverity},
		{"below range clamps", `{"severity": -3}`, MinSeverity},
		{"word falls back", `{"severity": "high"}`, DefaultSeverity},
		{"null falls back", `{"severity": null}`, DefaultSeverity},
		{"boolean falls back", `{"severity": true}`, DefaultSeverity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req DraftRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Severity != tt.expected {
				t.Errorf("got severity %d, want %d", req.Severity, tt.expected)
			}
		})
	}
}

func TestAnalysisOmitsEmptyError(t *testing.T) {
	b, err := json.Marshal(Analysis{Category: CategoryPothole, Severity: 4, Lat: "22.5", Lon: "88.3"})
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"category":"Pothole","severity":4,"lat":"22.5","lon":"88.3"}`
	if string(b) != expected {
		t.Errorf("got %s, want %s", b, expected)
	}
}

func TestOrNotProvided(t *testing.T) {
	for in, expected := range map[string]string{
		"":      LocationNotProvided,
		"N/A":   LocationNotProvided,
		"22.57": "22.57",
	} {
		if got := OrNotProvided(in); got != expected {
			t.Errorf("OrNotProvided(%q) = %q, want %q", in, got, expected)
		}
	}
}
