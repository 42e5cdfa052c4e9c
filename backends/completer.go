package backends

import (
	"github.com/vibego/vibego/auths"
	"github.com/vibego/vibego/vars"
	"github.com/vibego/vibego/vibeconfigs"
)

// NewCompleter resolves credentials and builds the configured chat
// backend. Credential resolution may prompt, so it runs on demand, not
// at wiring time.
type NewCompleter func() (Completer, error)

func (Module) NewCompleter(
	newChatClient NewChatClient,
	getCredentials auths.GetCredentials,
	model vibeconfigs.ModelName,
	baseURL vibeconfigs.BaseURL,
) NewCompleter {
	return func() (Completer, error) {
		creds, err := getCredentials()
		if err != nil {
			return nil, err
		}
		return newChatClient(
			vars.FirstNonZero(
				creds.BaseURL,
				string(baseURL),
			),
			string(model),
			creds.APIKey,
		), nil
	}
}
