package model

import "encoding/json"

// AnonymousUser is the placeholder identity handlers substitute when session
// auth is disabled.
const AnonymousUser = "default"

// Credential links one user to one external service instance. Data is the
// opaque token payload, typically an OAuth token response.
type Credential struct {
	Name string          `json:"name"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// CredentialSummary is the listing projection. Data never leaves the store
// through this type.
type CredentialSummary struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (c Credential) Summary() CredentialSummary {
	return CredentialSummary{Name: c.Name, Type: c.Type}
}
