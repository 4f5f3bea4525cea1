package quota

import "testing"

func TestAllow_FreeTierBoundaries(t *testing.T) {
	p := DefaultPolicy()

	// Free tier: 10 descriptions per month. countAfterReserve includes the
	// current request, so the 10th is allowed and the 11th is not.
	if !p.Allow(TierFree, TypeDescription, 10) {
		t.Error("Expected request 10 of 10 to be allowed")
	}
	if p.Allow(TierFree, TypeDescription, 11) {
		t.Error("Expected request 11 of 10 to be denied")
	}
}

func TestAllow_PerTypeCaps(t *testing.T) {
	p := DefaultPolicy()

	if p.Allow(TierFree, TypeTranslation, 6) {
		t.Error("Expected free translation cap of 5 to deny the 6th")
	}
	if !p.Allow(TierFree, TypeChat, 20) {
		t.Error("Expected free chat cap of 20 to allow the 20th")
	}
	if !p.Allow(TierStarter, TypeDescription, 200) {
		t.Error("Expected starter description cap of 200 to allow the 200th")
	}
	if p.Allow(TierProfessional, TypeChat, 2001) {
		t.Error("Expected professional chat cap of 2000 to deny the 2001st")
	}
}

func TestAllow_EnterpriseUnlimited(t *testing.T) {
	p := DefaultPolicy()
	for _, typ := range []string{TypeDescription, TypeTranslation, TypeChat} {
		if !p.Allow(TierEnterprise, typ, 1_000_000) {
			t.Errorf("Expected enterprise %s to be unlimited", typ)
		}
	}
}

func TestAllow_UnknownTierTreatedAsFree(t *testing.T) {
	p := DefaultPolicy()
	if p.Allow(Tier("platinum"), TypeDescription, 11) {
		t.Error("Expected unknown tier to use free limits")
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in   string
		want Tier
	}{
		{"free", TierFree},
		{"starter", TierStarter},
		{"professional", TierProfessional},
		{"enterprise", TierEnterprise},
		{"", TierFree},
		{"gold", TierFree},
	}
	for _, tt := range tests {
		if got := ParseTier(tt.in); got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCap(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Cap(TierEnterprise, TypeChat); got != Unlimited {
		t.Errorf("Expected unlimited sentinel, got %d", got)
	}
	if got := p.Cap(TierFree, TypeTranslation); got != 5 {
		t.Errorf("Expected 5, got %d", got)
	}
}
