package agent

import "testing"

func floatPtr(v float64) *float64 { return &v }

func TestAccuracyAcceptable(t *testing.T) {
	cases := []struct {
		name      string
		accuracyM *float64
		want      bool
	}{
		{"missing accuracy accepted", nil, true},
		{"precise fix accepted", floatPtr(4.2), true},
		{"boundary value accepted", floatPtr(150), true},
		{"just over boundary rejected", floatPtr(150.01), false},
		{"cell tower estimate rejected", floatPtr(1800), false},
		{"zero accepted", floatPtr(0), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AccuracyAcceptable(tc.accuracyM); got != tc.want {
				t.Fatalf("AccuracyAcceptable(%v) = %v, want %v", tc.accuracyM, got, tc.want)
			}
		})
	}
}
