package inventory

import "time"

// AuthMethod selects how the SSH runner authenticates against a target.
type AuthMethod string

const (
	AuthPassword   AuthMethod = "password"
	AuthPrivateKey AuthMethod = "key"
)

// Target is a managed remote host. Credential values are never stored here:
// CredentialRef names an environment variable (password auth) or a private
// key file path (key auth) that the runner resolves at connect time.
type Target struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Address          string     `json:"address"`
	Port             int        `json:"port"`
	Username         string     `json:"username"`
	AuthMethod       AuthMethod `json:"auth_method"`
	CredentialRef    string     `json:"credential_ref"`
	DisabledManagers []string   `json:"disabled_managers,omitempty"`
	Enabled          bool       `json:"enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ManagerDisabled reports whether the given package manager family has been
// switched off for this target by the operator.
func (t *Target) ManagerDisabled(family string) bool {
	for _, f := range t.DisabledManagers {
		if f == family {
			return true
		}
	}
	return false
}
