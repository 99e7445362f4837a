package policy

import "testing"

func TestHasRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		required Role
		want     bool
	}{
		{"exact match", []string{"ROLE_ADMIN"}, RoleAdmin, true},
		{"substring match", []string{"ROLE_ADMIN_BILLING"}, RoleAdmin, true},
		{"no match", []string{"ROLE_USER"}, RoleAdmin, false},
		{"empty roles", nil, RoleAdmin, false},
		{"super admin does not satisfy admin check", []string{"ROLE_SUPER_ADMIN"}, RoleAdmin, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasRole(tt.roles, tt.required); got != tt.want {
				t.Errorf("HasRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasAtLeast(t *testing.T) {
	tests := []struct {
		name     string
		roles    []string
		required Role
		want     bool
	}{
		{"super admin satisfies admin floor", []string{"ROLE_SUPER_ADMIN"}, RoleAdmin, true},
		{"admin satisfies user floor", []string{"ROLE_ADMIN"}, RoleUser, true},
		{"user does not satisfy admin floor", []string{"ROLE_USER"}, RoleAdmin, false},
		{"validation satisfies validation floor only", []string{"ROLE_VALIDATION"}, RoleValidation, true},
		{"validation does not satisfy user floor", []string{"ROLE_VALIDATION"}, RoleUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasAtLeast(tt.roles, tt.required); got != tt.want {
				t.Errorf("HasAtLeast() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLicenseCell_UserCap(t *testing.T) {
	tests := []struct {
		tier       Tier
		wantLimit  int
		wantCapped bool
	}{
		{TierFree, 200, true},
		{TierStandard, 10000, true},
		{TierEnterprise, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			c := NewLicenseCell(tt.tier)
			limit, capped := c.UserCap()
			if limit != tt.wantLimit || capped != tt.wantCapped {
				t.Errorf("UserCap() = (%d, %v), want (%d, %v)", limit, capped, tt.wantLimit, tt.wantCapped)
			}
		})
	}
}

func TestLicenseCell_AllowUserCreation(t *testing.T) {
	free := NewLicenseCell(TierFree)
	if !free.AllowUserCreation(199) {
		t.Error("free tier should allow the 200th user")
	}
	if free.AllowUserCreation(200) {
		t.Error("free tier should reject beyond 200 users")
	}

	ent := NewLicenseCell(TierEnterprise)
	if !ent.AllowUserCreation(1_000_000) {
		t.Error("enterprise tier should never be capped")
	}
}

func TestLicenseCell_KeySizes(t *testing.T) {
	free := NewLicenseCell(TierFree)
	if free.AESKeySize() != 128 {
		t.Errorf("free AESKeySize() = %d, want 128", free.AESKeySize())
	}
	if free.KyberKeySize() != 512 {
		t.Errorf("free KyberKeySize() = %d, want 512", free.KyberKeySize())
	}

	ent := NewLicenseCell(TierEnterprise)
	if ent.AESKeySize() != 256 {
		t.Errorf("enterprise AESKeySize() = %d, want 256", ent.AESKeySize())
	}
	if ent.KyberKeySize() != 1024 {
		t.Errorf("enterprise KyberKeySize() = %d, want 1024", ent.KyberKeySize())
	}
}

func TestLicenseCell_Refresh(t *testing.T) {
	c := NewLicenseCell(TierFree)
	c.Refresh(StaticSource(TierEnterprise))
	if c.Tier() != TierEnterprise {
		t.Errorf("Tier() after Refresh() = %v, want %v", c.Tier(), TierEnterprise)
	}
}
