package classify

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestClassifyWithPrevious(t *testing.T) {
	cases := []struct {
		name     string
		current  string
		previous string
		profile  Profile
		want     ChangeType
	}{
		{"manual spike at band boundary", "80", "64", Manual, Spike},
		{"manual below band stays normal", "79.99", "64", Manual, Normal},
		{"manual drop at band boundary", "20", "30", Manual, Drop},
		{"production spike", "90", "64", Production, Spike},
		{"production spike above high band", "77.1", "70", Production, Spike},
		{"production pct exactly threshold not significant", "77", "70", Production, Normal},
		{"production rise below high band", "60", "50", Production, Normal},
		{"production drop", "28", "40", Production, Drop},
		{"production drop at low band boundary", "30", "40", Production, Drop},
		{"production fall above low band", "45", "60", Production, Normal},
		{"manual pct exactly threshold not significant", "60", "50", Manual, Normal},
		{"small move is normal", "66", "64", Production, Normal},
		{"previous zero is normal", "95", "0", Production, Normal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := dec(tc.previous)
			got := Classify(dec(tc.current), &prev, tc.profile)
			if got != tc.want {
				t.Errorf("Classify(%s, %s, %s) = %s, want %s", tc.current, tc.previous, tc.profile.Name, got, tc.want)
			}
		})
	}
}

func TestClassifyFirstSighting(t *testing.T) {
	cases := []struct {
		current string
		want    ChangeType
	}{
		{"85", Spike},
		{"80", Spike},
		{"50", Normal},
		{"20.01", Normal},
		{"20", Drop},
		{"15", Drop},
	}

	for _, tc := range cases {
		// The first-sighting rule ignores the profile bands.
		for _, profile := range []Profile{Production, Manual} {
			got := Classify(dec(tc.current), nil, profile)
			if got != tc.want {
				t.Errorf("Classify(%s, nil, %s) = %s, want %s", tc.current, profile.Name, got, tc.want)
			}
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	prev := dec("64")
	first := Classify(dec("80"), &prev, Manual)
	for i := 0; i < 10; i++ {
		if got := Classify(dec("80"), &prev, Manual); got != first {
			t.Fatalf("classification not deterministic: %s then %s", first, got)
		}
	}
}

func TestProfileByName(t *testing.T) {
	p, err := ProfileByName("production")
	if err != nil || p.Name != Production.Name {
		t.Fatalf("expected production profile, got %v err %v", p, err)
	}

	p, err = ProfileByName("")
	if err != nil || p.Name != Production.Name {
		t.Fatalf("empty name should default to production, got %v err %v", p, err)
	}

	p, err = ProfileByName("manual")
	if err != nil || p.Name != Manual.Name {
		t.Fatalf("expected manual profile, got %v err %v", p, err)
	}

	if _, err = ProfileByName("aggressive"); err == nil {
		t.Fatal("unknown profile name should error")
	}
}

func TestMessageWithPrevious(t *testing.T) {
	got := Message("BTC", dec("90"), decPtr("64"), Spike)
	want := "📈 BTC sentiment spike! Now at 90/100 (+26.0 from 64, +40.6%)"
	if got != want {
		t.Errorf("spike message = %q, want %q", got, want)
	}

	got = Message("DOGE", dec("25"), decPtr("50"), Drop)
	want = "📉 DOGE sentiment drop! Now at 25/100 (-25.0 from 50, -50.0%)"
	if got != want {
		t.Errorf("drop message = %q, want %q", got, want)
	}
}

func TestMessageFirstAnalysis(t *testing.T) {
	got := Message("BTC", dec("85"), nil, Spike)
	want := "📈 BTC has high sentiment at 85/100 (first analysis)"
	if got != want {
		t.Errorf("first-analysis spike message = %q, want %q", got, want)
	}

	got = Message("SHIB", dec("12"), nil, Drop)
	want = "📉 SHIB has low sentiment at 12/100 (first analysis)"
	if got != want {
		t.Errorf("first-analysis drop message = %q, want %q", got, want)
	}
}
