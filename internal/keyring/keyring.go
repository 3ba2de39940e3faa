package keyring

import (
	"os"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/m96-chan/chatly/internal/consts"
)

// Secret is a credential stored in the system keyring that can be
// overridden with an environment variable.
type Secret struct {
	key string
	env string
}

var (
	// FrappeToken is the "api_key:api_secret" pair for a Chatly site.
	FrappeToken = Secret{key: "token", env: "CHATLY_TOKEN"}
	// SlackUserToken is the xoxp- token used for Slack REST calls.
	SlackUserToken = Secret{key: "slack_user_token", env: "CHATLY_SLACK_USER_TOKEN"}
	// SlackAppToken is the xapp- token used for Socket Mode.
	SlackAppToken = Secret{key: "slack_app_token", env: "CHATLY_SLACK_APP_TOKEN"}
)

// Get returns the secret from its env var, falling back to the system
// keyring. Missing secrets yield gokeyring.ErrNotFound.
func (s Secret) Get() (string, error) {
	if v := os.Getenv(s.env); v != "" {
		return v, nil
	}
	return gokeyring.Get(consts.Name, s.key)
}

// Set stores the secret in the system keyring.
func (s Secret) Set(value string) error {
	return gokeyring.Set(consts.Name, s.key, value)
}

// Delete removes the secret from the system keyring.
func (s Secret) Delete() error {
	return gokeyring.Delete(consts.Name, s.key)
}

// Env returns the name of the overriding environment variable.
func (s Secret) Env() string { return s.env }
