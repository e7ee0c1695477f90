package batch

import "github.com/memohai/relay/internal/pipeline"

// AuthContext carries the credentials forwarded to every dispatch of a batch.
// It is immutable: accessors return copies.
type AuthContext struct {
	namespace string
	provider  string
	token     string
	values    map[string]string
}

// NewAuthContext builds an AuthContext. values is copied.
func NewAuthContext(namespace, provider, token string, values map[string]string) AuthContext {
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return AuthContext{
		namespace: namespace,
		provider:  provider,
		token:     token,
		values:    copied,
	}
}

func (a AuthContext) Namespace() string { return a.namespace }
func (a AuthContext) Provider() string  { return a.provider }
func (a AuthContext) Token() string     { return a.token }

// Value returns an extra forwarded value.
func (a AuthContext) Value(key string) string {
	return a.values[key]
}

// Params renders the context as the auth section of pipeline params.
func (a AuthContext) Params() map[string]any {
	params := make(map[string]any, len(a.values)+2)
	for k, v := range a.values {
		params[k] = v
	}
	params[pipeline.AuthNamespace] = a.namespace
	params[pipeline.AuthToken] = a.token
	return params
}
