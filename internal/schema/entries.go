package schema

import (
	"github.com/halcyon-id/halcyon/internal/gateway"
	"github.com/halcyon-id/halcyon/internal/policy"
)

// Entry binds one policy entrypoint to the Go type the gateway serializes
// for it. Keeping the binding here, next to the exporter, is what the shape
// parity tests pin down: the exported schema and the live input document must
// come from the same type.
type Entry struct {
	Entrypoint string

	// Input is the zero value of the gateway's input type.
	Input any

	// Sample is a fully populated value, used to compare the fields the
	// gateway actually serializes against the exported schema.
	Sample any
}

// Entries lists every entrypoint the exporter and the gateway know about.
func Entries() []Entry {
	return []Entry{
		{
			Entrypoint: policy.EntrypointRegister,
			Input:      gateway.RegistrationInput{},
			Sample: gateway.RegistrationInput{
				RegistrationMethod: "password",
				Username:           "alice",
				Email:              "alice@example.com",
				DisplayName:        "Alice",
				UpstreamProviderID: "01H9PROVIDER",
			},
		},
		{
			Entrypoint: policy.EntrypointClientRegister,
			Input:      gateway.ClientRegistrationInput{},
			Sample: gateway.ClientRegistrationInput{
				ClientMetadata: gateway.ClientMetadata{
					RedirectURIs:    []string{"https://app.example.com/callback"},
					ApplicationType: "web",
					ClientName:      "Example App",
					ClientURI:       "https://app.example.com",
					LogoURI:         "https://app.example.com/logo.png",
					TosURI:          "https://app.example.com/tos",
					PolicyURI:       "https://app.example.com/privacy",
					Contacts:        []string{"admin@example.com"},
					GrantTypes:      []string{"authorization_code"},
					ResponseTypes:   []string{"code"},
				},
			},
		},
		{
			Entrypoint: policy.EntrypointAuthorizationGrant,
			Input:      gateway.GrantInput{},
			Sample: gateway.GrantInput{
				User:      gateway.UserInfo{ID: "01H9USER", Username: "alice"},
				Client:    gateway.ClientInfo{ID: "01H9CLIENT", Name: "Example App"},
				Scope:     "openid email",
				GrantType: "authorization_code",
			},
		},
		{
			Entrypoint: policy.EntrypointEmailAdd,
			Input:      gateway.EmailAddInput{},
			Sample: gateway.EmailAddInput{
				User:  gateway.UserInfo{ID: "01H9USER", Username: "alice"},
				Email: "alice@example.com",
			},
		},
	}
}
