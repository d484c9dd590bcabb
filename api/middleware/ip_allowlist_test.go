package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseIPAllowlist(t *testing.T) {
	list, err := ParseIPAllowlist([]string{"203.0.113.10", " 198.51.100.0/24 ", "", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if list.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", list.Len())
	}

	cases := map[string]bool{
		"203.0.113.10":        true,
		"203.0.113.10:55123":  true,
		"203.0.113.11":        false,
		"198.51.100.77":       true,
		"[2001:db8::1]:443":   true,
		"::ffff:203.0.113.10": true,
		"not-an-ip":           false,
		"":                    false,
	}
	for remote, want := range cases {
		if got := list.Allows(remote); got != want {
			t.Fatalf("Allows(%q) = %v, want %v", remote, got, want)
		}
	}

	if _, err := ParseIPAllowlist([]string{"300.1.1.1"}); err == nil {
		t.Fatal("expected invalid address error")
	}
	if _, err := ParseIPAllowlist([]string{"10.0.0.0/99"}); err == nil {
		t.Fatal("expected invalid prefix error")
	}
}

func TestRequireAllowedIP(t *testing.T) {
	list, _ := ParseIPAllowlist([]string{"203.0.113.10"})

	enforced := RequireAllowedIP(list, true, nil)(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/postback", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	resp := httptest.NewRecorder()
	enforced.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}

	req.RemoteAddr = "203.0.113.10:1234"
	resp = httptest.NewRecorder()
	enforced.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	bypassed := RequireAllowedIP(list, false, nil)(okHandler())
	req.RemoteAddr = "192.0.2.1:1234"
	resp = httptest.NewRecorder()
	bypassed.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected bypass outside production, got %d", resp.Code)
	}
}
