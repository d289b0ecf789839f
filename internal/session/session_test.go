package session

import (
	"context"
	"fmt"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := NewContext(context.Background(), Credentials{UserID: "ada", Password: "s3cret"})
	cred, ok := FromContext(ctx)
	if !ok {
		t.Fatal("Expected an active session")
	}
	if cred.UserID != "ada" || cred.Password != "s3cret" {
		t.Errorf("Unexpected credentials: %+v", cred)
	}
}

func TestNoSession(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("Expected no session in a bare context")
	}
	ctx := NewContext(context.Background(), Credentials{Password: "orphan"})
	if _, ok := FromContext(ctx); ok {
		t.Error("Credentials without a user must not count as a session")
	}
}

func TestStringHidesPassword(t *testing.T) {
	cred := Credentials{UserID: "ada", Password: "s3cret"}
	if got := fmt.Sprint(cred); got != "ada" {
		t.Errorf("Expected only the user id, got %q", got)
	}
}
