package bootstrap

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// CredentialIssuer is the collaborator that mints transient broker
// credentials. Contract: the password must never be reused verbatim across
// issuances and must carry an explicit expiry strictly after issuance.
type CredentialIssuer interface {
	Issue(ctx context.Context, tenantID, deviceID string) (MqttCredential, error)
}

type issuedCredential struct {
	tenantID  string
	username  string
	password  string
	expiresAt time.Time
}

// TransientIssuer issues random passwords and remembers the latest issuance
// per client until it expires, so the broker can verify connects against it.
// It is safe for concurrent use.
type TransientIssuer struct {
	ttl    time.Duration
	mutex  sync.RWMutex
	issued map[string]issuedCredential
	now    func() time.Time
}

// NewTransientIssuer returns an issuer whose passwords expire after ttl.
func NewTransientIssuer(ttl time.Duration) *TransientIssuer {
	if ttl <= 0 {
		panic("credential ttl must be positive")
	}
	return &TransientIssuer{
		ttl:    ttl,
		issued: make(map[string]issuedCredential),
		now:    time.Now,
	}
}

// Issue implements CredentialIssuer.
func (i *TransientIssuer) Issue(ctx context.Context, tenantID, deviceID string) (MqttCredential, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return MqttCredential{}, fmt.Errorf("cannot generate password: %w", err)
	}
	now := i.now()
	credential := MqttCredential{
		ClientID:          deviceID,
		Username:          tenantID + "/" + deviceID,
		Password:          base64.RawURLEncoding.EncodeToString(raw),
		PasswordExpiresAt: now.Add(i.ttl).Unix(),
	}

	i.mutex.Lock()
	i.issued[credential.ClientID] = issuedCredential{
		tenantID:  tenantID,
		username:  credential.Username,
		password:  credential.Password,
		expiresAt: now.Add(i.ttl),
	}
	i.mutex.Unlock()

	return credential, nil
}

// Verify checks a broker connect against the latest issuance for the client.
// It returns the tenant the credential was issued for.
func (i *TransientIssuer) Verify(clientID, username, password string) (string, bool) {
	i.mutex.RLock()
	issued, ok := i.issued[clientID]
	i.mutex.RUnlock()
	if !ok {
		return "", false
	}
	if i.now().After(issued.expiresAt) {
		return "", false
	}
	if issued.username != username || issued.password != password {
		return "", false
	}
	return issued.tenantID, true
}
