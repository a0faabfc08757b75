package services

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names a form input.
type Field string

const (
	FieldFullName        Field = "fullName"
	FieldEmail           Field = "email"
	FieldPassword        Field = "password"
	FieldConfirmPassword Field = "confirmPassword"
)

var fieldOrder = []Field{FieldFullName, FieldEmail, FieldPassword, FieldConfirmPassword}

const (
	MsgFullNameRequired = "Full name is required"
	MsgEmailRequired    = "Email is required"
	MsgEmailInvalid     = "Invalid email format"
	MsgPasswordRequired = "Password is required"
	MsgPasswordWeak     = "Password does not meet requirements"
	MsgConfirmRequired  = "Please confirm your password"
	MsgPasswordMismatch = "Passwords do not match"
)

const minPasswordLength = 8

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	upperPattern = regexp.MustCompile(`[A-Z]`)
	lowerPattern = regexp.MustCompile(`[a-z]`)
	digitPattern = regexp.MustCompile(`[0-9]`)
)

const passwordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// ValidatePassword reports whether p is at least eight characters long and
// has an upper-case letter, a lower-case letter, a digit and a symbol.
func ValidatePassword(p string) bool {
	return utf8.RuneCountInString(p) >= minPasswordLength &&
		upperPattern.MatchString(p) &&
		lowerPattern.MatchString(p) &&
		digitPattern.MatchString(p) &&
		strings.ContainsAny(p, passwordSymbols)
}

// ValidateField checks one field in isolation and returns its error message,
// or "" when the value is acceptable. password is only consulted for
// FieldConfirmPassword.
func ValidateField(field Field, value, password string) string {
	switch field {
	case FieldFullName:
		if strings.TrimSpace(value) == "" {
			return MsgFullNameRequired
		}
	case FieldEmail:
		v := strings.TrimSpace(value)
		if v == "" {
			return MsgEmailRequired
		}
		if !emailPattern.MatchString(v) {
			return MsgEmailInvalid
		}
	case FieldPassword:
		if value == "" {
			return MsgPasswordRequired
		}
		if !ValidatePassword(value) {
			return MsgPasswordWeak
		}
	case FieldConfirmPassword:
		if value == "" {
			return MsgConfirmRequired
		}
		if value != password {
			return MsgPasswordMismatch
		}
	}
	return ""
}

// ValidateLogin checks the login form. Password complexity is not enforced
// here; accounts created before the rule existed must still be able to sign
// in.
func ValidateLogin(email, password string) *ValidationError {
	errs := map[Field]string{}
	if msg := ValidateField(FieldEmail, email, ""); msg != "" {
		errs[FieldEmail] = msg
	}
	if password == "" {
		errs[FieldPassword] = MsgPasswordRequired
	}
	return newValidationError(errs)
}

// ValidateRegistration checks every field of the registration form.
func ValidateRegistration(fullName, email, password, confirm string) *ValidationError {
	values := map[Field]string{
		FieldFullName:        fullName,
		FieldEmail:           email,
		FieldPassword:        password,
		FieldConfirmPassword: confirm,
	}
	errs := map[Field]string{}
	for f, v := range values {
		if msg := ValidateField(f, v, password); msg != "" {
			errs[f] = msg
		}
	}
	return newValidationError(errs)
}

func newValidationError(errs map[Field]string) *ValidationError {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}
