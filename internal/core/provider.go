package core

type AuthProviderRequirements struct {
	Default     []string `json:"default"`
	PublicRepo  []string `json:"publicRepo"`
	PrivateRepo []string `json:"privateRepo"`
}

// AuthProviderInfo describes a git provider the service can authorize against.
type AuthProviderInfo struct {
	AuthProviderID   string                    `json:"authProviderId"`
	AuthProviderType string                    `json:"authProviderType"`
	Host             string                    `json:"host"`
	OwnerID          string                    `json:"ownerId,omitempty"`
	Verified         bool                      `json:"verified"`
	IsReadonly       bool                      `json:"isReadonly,omitempty"`
	Scopes           []string                  `json:"scopes,omitempty"`
	Requirements     *AuthProviderRequirements `json:"requirements,omitempty"`
}

type AuthProviderOAuth struct {
	ClientID    string `json:"clientId"`
	CallBackURL string `json:"callBackUrl"`
}

// AuthProviderEntry is a provider registered by the user.
type AuthProviderEntry struct {
	ID      string            `json:"id"`
	Type    string            `json:"type"`
	Host    string            `json:"host"`
	OwnerID string            `json:"ownerId"`
	Status  string            `json:"status"`
	OAuth   AuthProviderOAuth `json:"oauth"`
}

type AuthProviderEntryUpdate struct {
	ID           string `json:"id,omitempty"`
	Type         string `json:"type,omitempty"`
	Host         string `json:"host"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

const ProviderStatusVerified = "verified"

type Token struct {
	Value    string   `json:"value,omitempty"`
	Username string   `json:"username,omitempty"`
	Scopes   []string `json:"scopes"`
}

// Identity links the user to an auth provider.
type Identity struct {
	AuthProviderID string `json:"authProviderId"`
	AuthID         string `json:"authId"`
	AuthName       string `json:"authName"`
}

type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name,omitempty"`
	Identities []Identity `json:"identities"`
}
