package vault

import (
	"errors"
	"strings"
	"testing"
)

func TestVerifyAcceptsMatchingPassword(t *testing.T) {
	t.Parallel()

	record, hashErr := Hash("correct horse battery staple")
	if hashErr != nil {
		t.Fatalf("unexpected hash error: %v", hashErr)
	}
	if !strings.HasPrefix(record, "$argon2id$") {
		t.Fatalf("expected PHC argon2id record, got %q", record)
	}

	matched, verifyErr := Verify("correct horse battery staple", record)
	if verifyErr != nil {
		t.Fatalf("unexpected verify error: %v", verifyErr)
	}
	if !matched {
		t.Fatalf("expected matching password to verify")
	}
}

func TestVerifyRejectsWrongPasswordWithoutError(t *testing.T) {
	t.Parallel()

	record, hashErr := Hash("correct horse battery staple")
	if hashErr != nil {
		t.Fatalf("unexpected hash error: %v", hashErr)
	}

	matched, verifyErr := Verify("incorrect horse battery staple", record)
	if verifyErr != nil {
		t.Fatalf("expected no error for wrong password, got %v", verifyErr)
	}
	if matched {
		t.Fatalf("expected wrong password to fail verification")
	}
}

func TestHashProducesDistinctRecordsPerCall(t *testing.T) {
	t.Parallel()

	first, firstErr := Hash("repeatable-password-123")
	if firstErr != nil {
		t.Fatalf("unexpected hash error: %v", firstErr)
	}
	second, secondErr := Hash("repeatable-password-123")
	if secondErr != nil {
		t.Fatalf("unexpected hash error: %v", secondErr)
	}
	if first == second {
		t.Fatalf("expected random salts to produce distinct records")
	}
}

func TestVerifyFailsOnMalformedRecord(t *testing.T) {
	t.Parallel()

	malformed := []string{
		"",
		"not-a-record",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=65536,t=3$c2FsdA$ZGlnZXN0",
		"$argon2id$v=19$m=65536,t=3,p=1$!!!$ZGlnZXN0",
	}
	for _, record := range malformed {
		if _, err := Verify("any-password", record); !errors.Is(err, ErrMalformedRecord) {
			t.Fatalf("expected ErrMalformedRecord for %q, got %v", record, err)
		}
	}
}
