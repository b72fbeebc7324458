package rule

import "testing"

func TestComposePriority(t *testing.T) {
	got := ComposePriority(TierDefault, 100)
	if got != 1.1 {
		t.Errorf("ComposePriority(TierDefault, 100) = %v, want 1.1", got)
	}
}

// A higher tier must outrank a lower tier no matter what the authors declared.
func TestTierDominance(t *testing.T) {
	tiers := []Tier{TierDefault, TierExtension, TierWorkspace, TierUser, TierAdmin}
	declared := []int{0, 1, 42, 500, 998, 999}

	for i, low := range tiers {
		for _, high := range tiers[i+1:] {
			for _, dLow := range declared {
				for _, dHigh := range declared {
					pLow := ComposePriority(low, dLow)
					pHigh := ComposePriority(high, dHigh)
					if pLow >= pHigh {
						t.Fatalf("tier %d priority %d (=%v) should be below tier %d priority %d (=%v)",
							low, dLow, pLow, high, dHigh, pHigh)
					}
				}
			}
		}
	}
}

func TestTierLabels(t *testing.T) {
	cases := map[Tier]string{
		TierDefault:   "Default",
		TierExtension: "Extension",
		TierWorkspace: "Workspace",
		TierUser:      "User",
		TierAdmin:     "Admin",
		Tier(99):      "Unknown",
	}
	for tier, want := range cases {
		if got := tier.Label(); got != want {
			t.Errorf("Tier(%d).Label() = %q, want %q", tier, got, want)
		}
	}
}
