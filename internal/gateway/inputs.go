package gateway

// Input documents serialized for each policy entrypoint. Field sets are
// additive-only across versions: adding a field is backward-compatible for
// deployed bundles, removing or retyping one is not. The schema exporter
// derives its artifacts from these exact types.

// UserInfo identifies a user in an input document.
type UserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ClientInfo identifies an OAuth2/OIDC client in an input document.
type ClientInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// RegistrationInput is the document for the "register" entrypoint.
type RegistrationInput struct {
	// RegistrationMethod is "password" or "upstream_oauth2".
	RegistrationMethod string `json:"registration_method"`
	Username           string `json:"username"`
	Email              string `json:"email,omitempty"`
	DisplayName        string `json:"display_name,omitempty"`

	// UpstreamProviderID is set for upstream_oauth2 registrations.
	UpstreamProviderID string `json:"upstream_provider_id,omitempty"`
}

// ClientMetadata carries the metadata a client submitted at registration.
type ClientMetadata struct {
	RedirectURIs    []string `json:"redirect_uris,omitempty"`
	ApplicationType string   `json:"application_type,omitempty"`
	ClientName      string   `json:"client_name,omitempty"`
	ClientURI       string   `json:"client_uri,omitempty"`
	LogoURI         string   `json:"logo_uri,omitempty"`
	TosURI          string   `json:"tos_uri,omitempty"`
	PolicyURI       string   `json:"policy_uri,omitempty"`
	Contacts        []string `json:"contacts,omitempty"`
	GrantTypes      []string `json:"grant_types,omitempty"`
	ResponseTypes   []string `json:"response_types,omitempty"`
}

// ClientRegistrationInput is the document for the "client_register"
// entrypoint.
type ClientRegistrationInput struct {
	ClientMetadata ClientMetadata `json:"client_metadata"`
}

// GrantInput is the document for the "authorization_grant" entrypoint.
type GrantInput struct {
	User      UserInfo   `json:"user"`
	Client    ClientInfo `json:"client"`
	Scope     string     `json:"scope"`
	GrantType string     `json:"grant_type"`
}

// EmailAddInput is the document for the "email_add" entrypoint, evaluated
// before an email address is attached to an account (including recovery and
// linking flows).
type EmailAddInput struct {
	User  UserInfo `json:"user"`
	Email string   `json:"email"`
}
