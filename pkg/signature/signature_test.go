package signature

import (
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
)

func TestGenerateThenVerify(t *testing.T) {
	body := []byte(`{"orderId":"O1","status":"approved","rewardAmount":"5000"}`)
	sig := Generate(body, "s3cret")

	cases := map[string]string{
		"bare":         sig,
		"upper hex":    strings.ToUpper(sig),
		"sha256":       "sha256=" + sig,
		"hmac-sha256":  "hmac-sha256=" + sig,
		"mixed prefix": "SHA256=" + sig,
		"padded":       "  " + sig + " ",
	}
	for name, header := range cases {
		if !Verify(body, header, "s3cret") {
			t.Fatalf("%s: expected signature to verify", name)
		}
	}
}

func TestVerifyRejectsSingleByteFlips(t *testing.T) {
	body := []byte(`{"orderId":"O1"}`)
	sig := Generate(body, "s3cret")

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if Verify(mutated, sig, "s3cret") {
			t.Fatalf("body flip at %d should fail verification", i)
		}
	}

	for i := range sig {
		flipped := []byte(sig)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		if Verify(body, string(flipped), "s3cret") {
			t.Fatalf("signature flip at %d should fail verification", i)
		}
	}
}

func TestVerifyRejectsBadInput(t *testing.T) {
	body := []byte("payload")
	sig := Generate(body, "s3cret")

	tests := []struct {
		name   string
		header string
		secret string
	}{
		{name: "blank header", header: "", secret: "s3cret"},
		{name: "prefix only", header: "sha256=", secret: "s3cret"},
		{name: "blank secret", header: sig, secret: " "},
		{name: "wrong secret", header: sig, secret: "other"},
		{name: "not hex", header: "zz" + sig[2:], secret: "s3cret"},
		{name: "truncated", header: sig[:len(sig)-2], secret: "s3cret"},
		{name: "too long", header: sig + "00", secret: "s3cret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if Verify(body, tc.header, tc.secret) {
				t.Fatalf("expected verification to fail")
			}
		})
	}
}

func TestSecretResolver(t *testing.T) {
	resolver := NewSecretResolver(map[string]string{"Acme": " s3cret ", "": "ignored", "empty": ""})

	secret, err := resolver.Resolve("acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret != "s3cret" {
		t.Fatalf("expected trimmed secret, got %q", secret)
	}

	if _, err := resolver.Resolve("globex"); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := resolver.Resolve("empty"); !pkgerrors.IsCode(err, pkgerrors.CodeConfiguration) {
		t.Fatalf("expected configuration error for blank secret, got %v", err)
	}
	if _, err := resolver.Resolve(" "); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for blank source, got %v", err)
	}
	if got := len(resolver.Sources()); got != 2 {
		t.Fatalf("expected 2 sources, got %d", got)
	}
}
