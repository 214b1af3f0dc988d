package core

import (
	"testing"
	"time"
)

func TestAccountStatusTransitions(t *testing.T) {
	cases := []struct {
		from    AccountStatus
		to      AccountStatus
		allowed bool
	}{
		{AccountStatusActive, AccountStatusRefreshing, true},
		{AccountStatusActive, AccountStatusError, true},
		{AccountStatusActive, AccountStatusBanned, true},
		{AccountStatusRefreshing, AccountStatusActive, true},
		{AccountStatusError, AccountStatusActive, true},
		{AccountStatusUnknown, AccountStatusActive, true},
		{AccountStatusBanned, AccountStatusActive, false},
		{AccountStatusBanned, AccountStatusError, false},
		{AccountStatusUnknown, AccountStatusRefreshing, false},
	}
	for _, tc := range cases {
		err := tc.from.TransitionTo(tc.to)
		if tc.allowed && err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", tc.from, tc.to, err)
		}
		if !tc.allowed && err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestAccountStatusSelfTransition(t *testing.T) {
	if err := AccountStatusBanned.TransitionTo(AccountStatusBanned); err != nil {
		t.Fatalf("self transition should be a no-op: %v", err)
	}
}

func TestNormalizeAccountRepairsDefaults(t *testing.T) {
	account := &Account{
		ID:           " acc-1 ",
		Email:        "user@example.com",
		RefreshToken: "rt",
		Status:       AccountStatus("bogus"),
	}
	report := NormalizeAccount(account)

	if report.Incomplete {
		t.Fatalf("account should not be incomplete: %+v", report)
	}
	if !report.Repaired() {
		t.Fatal("expected repairs")
	}
	if account.ID != "acc-1" {
		t.Fatalf("expected trimmed id, got %q", account.ID)
	}
	if account.Status != AccountStatusUnknown {
		t.Fatalf("expected status repaired to unknown, got %q", account.Status)
	}
	if account.AuthMethod != defaultAuthMethod {
		t.Fatalf("expected default auth method, got %q", account.AuthMethod)
	}
	if account.Provider != defaultProvider {
		t.Fatalf("expected default provider, got %q", account.Provider)
	}
	if account.Version != 1 {
		t.Fatalf("expected version repaired to 1, got %d", account.Version)
	}
}

func TestNormalizeAccountIncomplete(t *testing.T) {
	report := NormalizeAccount(&Account{ID: "acc-1", Status: AccountStatusActive, Version: 1})
	if !report.Incomplete {
		t.Fatal("missing email and refresh token should mark the record incomplete")
	}
	if report := NormalizeAccount(nil); !report.Incomplete {
		t.Fatal("nil account should be incomplete")
	}
}

func TestTokenExpiresWithin(t *testing.T) {
	now := time.Now().UTC()
	account := testAccount("acc-1", AccountStatusActive, now.Add(5*time.Minute))

	if !account.TokenExpiresWithin(now, 10*time.Minute) {
		t.Fatal("token expiring in 5m should be within a 10m window")
	}
	if account.TokenExpiresWithin(now, time.Minute) {
		t.Fatal("token expiring in 5m should not be within a 1m window")
	}
	if !(&Account{}).TokenExpiresWithin(now, time.Minute) {
		t.Fatal("zero expiry should always count as expiring")
	}
}
