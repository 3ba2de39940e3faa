package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGetSecrets(t *testing.T) {
	gokeyring.MockInit()

	for _, s := range []Secret{FrappeToken, SlackUserToken, SlackAppToken} {
		t.Run(s.key, func(t *testing.T) {
			if err := s.Set("value-" + s.key); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := s.Get()
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != "value-"+s.key {
				t.Errorf("got %q, want %q", got, "value-"+s.key)
			}
		})
	}
}

func TestEnvVarFallback(t *testing.T) {
	gokeyring.MockInit()

	if err := FrappeToken.Set("keyring-value"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Env var takes priority.
	t.Setenv("CHATLY_TOKEN", "env-value")
	got, err := FrappeToken.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "env-value" {
		t.Errorf("got %q, want %q", got, "env-value")
	}

	t.Setenv("CHATLY_SLACK_APP_TOKEN", "xapp-env")
	got, err = SlackAppToken.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "xapp-env" {
		t.Errorf("got %q, want %q", got, "xapp-env")
	}
}

func TestMissingSecretReturnsErrNotFound(t *testing.T) {
	gokeyring.MockInit()

	if _, err := SlackUserToken.Get(); !errors.Is(err, gokeyring.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestDeleteRemovesSecret(t *testing.T) {
	gokeyring.MockInit()

	if err := FrappeToken.Set("to-delete"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := FrappeToken.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := FrappeToken.Get(); !errors.Is(err, gokeyring.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound after delete", err)
	}
}
