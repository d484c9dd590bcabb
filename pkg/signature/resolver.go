package signature

import (
	"strings"

	pkgerrors "github.com/angelmondragon/convtrack-backend/pkg/errors"
)

// SecretResolver maps a source name onto its shared signing secret.
type SecretResolver struct {
	secrets map[string]string
}

// NewSecretResolver copies the configured source:secret pairs. Source names
// are matched case-insensitively.
func NewSecretResolver(secrets map[string]string) *SecretResolver {
	normalized := make(map[string]string, len(secrets))
	for name, secret := range secrets {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(secret)
	}
	return &SecretResolver{secrets: normalized}
}

// Resolve returns the secret for source. A source with no secret is a
// configuration problem, not a verification failure.
func (r *SecretResolver) Resolve(source string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(source))
	if key == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "source is required")
	}
	if r == nil {
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, "no signing secrets configured")
	}
	secret, ok := r.secrets[key]
	if !ok || secret == "" {
		return "", pkgerrors.New(pkgerrors.CodeConfiguration, "signing secret not configured").
			WithDetails(map[string]any{"source": source})
	}
	return secret, nil
}

// Sources lists the configured source names.
func (r *SecretResolver) Sources() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.secrets))
	for name := range r.secrets {
		out = append(out, name)
	}
	return out
}
