// Package pipeline runs named per-event pipelines, either in-process through a
// Registry or on a remote pipeline runtime through a GatewayInvoker.
package pipeline

import (
	"context"
	"errors"
	"strings"
)

// Parameter keys shared by every pipeline invocation.
const (
	ParamProvider = "provider"
	ParamAuth     = "auth"

	AuthNamespace = "namespace"
	AuthToken     = "token"
)

// ErrPipelineNotFound is returned when no pipeline is registered under a name.
var ErrPipelineNotFound = errors.New("pipeline not found")

// Invoker runs a named pipeline and blocks until it has finished.
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) (Activation, error)
}

// Activation is the outcome of one completed pipeline invocation.
type Activation struct {
	ID     string         `json:"activation_id"`
	Result map[string]any `json:"result,omitempty"`
}

// InvokeError reports a failed invocation. ActivationID is set when the
// runtime had already assigned one before the pipeline failed.
type InvokeError struct {
	ActivationID string
	Message      string
	Err          error
}

func (e *InvokeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "pipeline invocation failed"
}

func (e *InvokeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthValue reads a forwarded auth value from invocation params.
func AuthValue(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	switch auth := params[ParamAuth].(type) {
	case map[string]any:
		value, _ := auth[key].(string)
		return strings.TrimSpace(value)
	case map[string]string:
		return strings.TrimSpace(auth[key])
	default:
		return ""
	}
}

// Provider returns the provider tag attached to invocation params.
func Provider(params map[string]any) string {
	if params == nil {
		return ""
	}
	value, _ := params[ParamProvider].(string)
	return strings.TrimSpace(value)
}
