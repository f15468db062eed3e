package biometric

import (
	"encoding/json"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

// webAuthnUser adapts a user record to webauthn.User. The user handle is the
// record UUID so the email never reaches the authenticator as an id.
type webAuthnUser struct {
	record      *users.UserRecord
	credentials []webauthn.Credential
}

func newWebAuthnUser(rec *users.UserRecord) (*webAuthnUser, error) {
	u := &webAuthnUser{record: rec}
	if rec.HasCredential() {
		var credential webauthn.Credential
		if err := json.Unmarshal(rec.BiometricCredential, &credential); err != nil {
			return nil, fmt.Errorf("decoding stored credential: %w", err)
		}
		u.credentials = []webauthn.Credential{credential}
	}
	return u, nil
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.record.ID)
}

func (u *webAuthnUser) WebAuthnName() string {
	return u.record.Email
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.record.Email
}

func (u *webAuthnUser) WebAuthnIcon() string {
	return ""
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
