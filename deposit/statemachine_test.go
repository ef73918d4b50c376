package deposit

import "testing"

func TestAllowedTransitions(t *testing.T) {
	var table = []struct {
		from, to Status
		ok       bool
	}{
		{StatusUnknown, StatusPartial, true},
		{StatusUnknown, StatusDeposited, true},
		{StatusUnknown, StatusVerified, false},
		{StatusPartial, StatusPartial, true},
		{StatusPartial, StatusDeposited, true},
		{StatusPartial, StatusExpired, true},
		{StatusPartial, StatusVerified, false},
		{StatusDeposited, StatusVerified, true},
		{StatusDeposited, StatusRejected, true},
		{StatusDeposited, StatusLoading, false},
		{StatusVerified, StatusLoading, true},
		{StatusVerified, StatusDone, false},
		{StatusLoading, StatusDone, true},
		{StatusLoading, StatusFailed, true},
		{StatusDone, StatusDone, true},
		{StatusDone, StatusLoading, false},
		{StatusRejected, StatusDeposited, false},
		{StatusFailed, StatusVerified, true},
		{StatusFailed, StatusLoading, false},
		{StatusExpired, StatusPartial, false},
	}
	for _, row := range table {
		if got := Allowed(row.from, row.to); got != row.ok {
			t.Errorf("Allowed(%v, %v) = %v, expected %v", row.from, row.to, got, row.ok)
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusPartial, StatusDeposited, StatusRejected,
		StatusVerified, StatusLoading, StatusDone, StatusFailed, StatusExpired} {
		if ParseStatus(s.String()) != s {
			t.Errorf("status %v does not round trip through %q", s, s.String())
		}
	}
	if ParseStatus("nonsense") != StatusUnknown {
		t.Error("unknown status name did not map to StatusUnknown")
	}
}

func TestOriginURL(t *testing.T) {
	client := &Client{ProviderURL: "https://forge.example.org/"}
	var table = []struct {
		extid, want string
	}{
		{"", ""},
		{"proj-1", "https://forge.example.org/proj-1"},
		{"/proj-1/", "https://forge.example.org/proj-1"},
	}
	for _, row := range table {
		if got := OriginURL(client, row.extid); got != row.want {
			t.Errorf("OriginURL(%q) = %q, expected %q", row.extid, got, row.want)
		}
	}
}
