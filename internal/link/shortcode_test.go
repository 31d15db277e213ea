package link

import (
	"strings"
	"testing"
)

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), codeLength)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeCharset, r) {
				t.Fatalf("code %q contains %q outside charset", code, r)
			}
		}
		seen[code] = true
	}

	if len(seen) < 2 {
		t.Error("codes should not all collide")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"plain https", "https://example.com/page?q=1", false},
		{"plain http", "http://example.com", false},
		{"ftp scheme", "ftp://example.com/file", true},
		{"javascript scheme", "javascript:alert(1)", true},
		{"data payload hidden in query", "https://example.com/?x=data:text/html", true},
		{"relative path", "/just/a/path", true},
		{"too long", "https://example.com/" + strings.Repeat("a", 100), true},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.url, 64)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: ValidateURL(%q) = %v, wantErr %v", tt.name, tt.url, err, tt.wantErr)
		}
	}
}
