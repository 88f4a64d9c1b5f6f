package oob

import "testing"

func TestCanDelete(t *testing.T) {
	inv := &Invitation{InviterDIDHash: "alice-hash"}

	cases := []struct {
		name     string
		did      string
		isAdmin  bool
		expected bool
	}{
		{"owner may delete", "alice-hash", false, true},
		{"admin may delete", "bob-hash", true, true},
		{"stranger may not delete", "bob-hash", false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanDelete(inv, tc.did, tc.isAdmin); got != tc.expected {
				t.Errorf("CanDelete() = %v, want %v", got, tc.expected)
			}
		})
	}
}
