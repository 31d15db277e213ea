package auth

import "unicode"

// PolicyError reports the first password rule a candidate violates.
type PolicyError struct {
	Reason string
}

func (e PolicyError) Error() string {
	return e.Reason
}

// ValidatePassword checks password complexity requirements. It is pure and
// returns only the first violated rule, so a failed attempt surfaces one
// message at a time.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return PolicyError{Reason: "password must be at least 8 characters long"}
	}

	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		return PolicyError{Reason: "password must contain at least one uppercase letter"}
	}
	if !hasDigit {
		return PolicyError{Reason: "password must contain at least one number"}
	}
	if !hasSymbol {
		return PolicyError{Reason: "password must contain at least one special character"}
	}

	return nil
}
