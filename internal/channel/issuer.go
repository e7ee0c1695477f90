package channel

import (
	"fmt"
	"strings"
	"time"

	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/batch"
)

// AuthIssuer builds the AuthContext forwarded to every dispatch of a batch.
type AuthIssuer struct {
	namespace string
	secret    string
	ttl       time.Duration
	now       func() time.Time
}

// NewAuthIssuer creates an issuer. With an empty secret no pipeline token is
// minted and the context only carries the namespace and provider.
func NewAuthIssuer(namespace, secret string, ttl time.Duration) *AuthIssuer {
	if strings.TrimSpace(namespace) == "" {
		namespace = "default"
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AuthIssuer{
		namespace: strings.TrimSpace(namespace),
		secret:    secret,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Issue returns a fresh AuthContext for a batch received on channelType.
func (i *AuthIssuer) Issue(channelType ChannelType) (batch.AuthContext, error) {
	provider := normalizeChannelType(channelType.String())
	if provider == "" {
		return batch.AuthContext{}, fmt.Errorf("channel type is required")
	}
	token := ""
	if strings.TrimSpace(i.secret) != "" {
		signed, _, err := auth.GeneratePipelineToken(auth.PipelineToken{
			Namespace: i.namespace,
			Provider:  provider.String(),
		}, i.secret, i.ttl)
		if err != nil {
			return batch.AuthContext{}, fmt.Errorf("issue pipeline token: %w", err)
		}
		token = signed
	}
	return batch.NewAuthContext(i.namespace, provider.String(), token, map[string]string{
		"issued_at": i.now().UTC().Format(time.RFC3339),
	}), nil
}
