package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "unit-test-secret"

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	identity := Identity{Username: "alice", AccountID: "acc-1", Admin: true}

	token, err := issuer.Issue(identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != identity {
		t.Errorf("Verify = %+v, want %+v", got, identity)
	}
}

func TestTokenExpired(t *testing.T) {
	issuer := NewIssuer(testSecret, -time.Minute)

	token, err := issuer.Issue(Identity{Username: "alice", AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify = %v, want ErrTokenExpired", err)
	}
}

func TestTokenTamperedSignature(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	token, err := issuer.Issue(Identity{Username: "alice", AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	if _, err := issuer.Verify(tampered); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("Verify(tampered) = %v, want ErrTokenSignature", err)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewIssuer(testSecret, time.Hour).Issue(Identity{Username: "alice", AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := NewIssuer("other-secret", time.Hour).Verify(token); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("Verify(wrong secret) = %v, want ErrTokenSignature", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)

	for _, token := range []string{"", "garbage", "a.b", "a.b.c"} {
		if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) = %v, want ErrTokenMalformed", token, err)
		}
	}
}
