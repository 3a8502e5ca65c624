package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/openbp/engine/internal/metrics"
)

// Provider types a request-type template may address.
const (
	ProviderRegisters       = "registers"
	ProviderBlockchain      = "blockchain"
	ProviderRegisterKeys    = "registerKeys"
	ProviderExternalService = "externalService"
)

// Request verbs. Every provider call is one of these four.
const (
	VerbGet    = "get"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbDelete = "delete"
)

// ProviderRequest is one normalized CRUD call against an external provider.
// Provider, Service and Method are only set for the generic external-service
// type, where they select the configured endpoint.
type ProviderRequest struct {
	Verb     string
	Resource string
	Data     map[string]any

	Provider string
	Service  string
	Method   string
}

// Provider is the pluggable external-collaborator boundary. Implementations
// perform the outbound call and return the raw decoded response; failures
// must be returned untouched, wrapped at most in a ProviderCallError so the
// handler can log the response detail.
type Provider interface {
	Do(ctx context.Context, req ProviderRequest) (any, error)
}

// ProviderCallError carries the outbound failure detail the error-handling
// contract requires in the logs: request URL, response status and body.
type ProviderCallError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider call failed: %s: status %d: %v", e.URL, e.Status, e.Err)
}

func (e *ProviderCallError) Unwrap() error {
	return e.Err
}

// ProviderRegistry holds one Provider per provider type. It is populated once
// at process start; lookups after that are read only.
type ProviderRegistry struct {
	providers map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(providerType string, p Provider) {
	r.providers[providerType] = p
}

func (r *ProviderRegistry) Lookup(providerType string) (Provider, error) {
	p, ok := r.providers[providerType]
	if !ok {
		return nil, errors.Wrap(ErrUnknownProvider, "", j.KV("provider_type", providerType))
	}

	return p, nil
}

// DoRequest routes one normalized CRUD request to its provider. Outbound
// failures are logged with the request URL, response status and body, then
// rethrown untouched; the dispatcher's notFailOnError policy decides what
// happens to the surrounding event.
func (e *Engine) DoRequest(ctx context.Context, providerType string, req ProviderRequest) (*RequestResult, error) {
	provider, err := e.clients.Providers.Lookup(providerType)
	if err != nil {
		return nil, err
	}

	response, err := provider.Do(ctx, req)
	if err != nil {
		metrics.ExternalCallErrors.WithLabelValues(providerType).Inc()

		meta := j.MKV{
			"type":          "external-service-error|send-error",
			"provider_type": providerType,
			"verb":          req.Verb,
		}
		var callErr *ProviderCallError
		if errors.As(err, &callErr) {
			meta["url"] = callErr.URL
			meta["status"] = strconv.Itoa(callErr.Status)
			meta["body"] = callErr.Body
		}
		e.logger.Error(ctx, errors.Wrap(err, "external request failed", meta))

		return nil, err
	}

	method := req.Verb
	if req.Method != "" {
		method = req.Method
	}

	return &RequestResult{
		Provider:  providerType,
		Method:    method,
		Response:  response,
		IsHandled: true,
	}, nil
}

func (e *Engine) handleRequest(ctx context.Context, m Message, tmpl *EventTemplate) (outcome, error) {
	docs, events, err := e.expressionArgs(ctx, m.WorkflowID)
	if err != nil {
		return outcome{}, err
	}

	providerType, req, err := e.resolveRequest(tmpl.Schema, docs, events)
	if err != nil {
		return outcome{}, err
	}

	res, err := e.DoRequest(ctx, providerType, req)
	if err != nil {
		return outcome{}, err
	}

	return outcome{resultKey: "request", result: res, done: true}, nil
}

// resolveRequest reads either the "request" section (typed providers) or the
// "sendToExternalService" section (generic external service, where the
// declared method is the secondary dispatch key).
func (e *Engine) resolveRequest(schema map[string]any, docs, events []map[string]any) (string, ProviderRequest, error) {
	if section, ok := schemaSection(schema, "sendToExternalService"); ok {
		req := ProviderRequest{Verb: VerbCreate}

		var err error
		req.Provider, err = e.evaluator.resolveString(section["providerName"], docs, events)
		if err != nil {
			return "", ProviderRequest{}, err
		}
		req.Service, err = e.evaluator.resolveString(section["service"], docs, events)
		if err != nil {
			return "", ProviderRequest{}, err
		}
		req.Method, err = e.evaluator.resolveString(section["method"], docs, events)
		if err != nil {
			return "", ProviderRequest{}, err
		}

		req.Data, err = e.resolveData(section, docs, events)
		if err != nil {
			return "", ProviderRequest{}, err
		}

		return ProviderExternalService, req, nil
	}

	section, ok := schemaSection(schema, "request")
	if !ok {
		return "", ProviderRequest{}, errors.Wrap(ErrUnknownOperation, "request schema section missing")
	}

	providerType := schemaString(section, "type")
	verb := schemaString(section, "method")
	switch verb {
	case VerbGet, VerbCreate, VerbUpdate, VerbDelete:
	default:
		return "", ProviderRequest{}, errors.Wrap(ErrUnknownOperation, "", j.MKV{
			"event_type": EventTypeRequest.String(),
			"operation":  verb,
		})
	}

	resource, err := e.evaluator.resolveString(section["resource"], docs, events)
	if err != nil {
		return "", ProviderRequest{}, err
	}

	data, err := e.resolveData(section, docs, events)
	if err != nil {
		return "", ProviderRequest{}, err
	}

	return providerType, ProviderRequest{
		Verb:     verb,
		Resource: resource,
		Data:     data,
	}, nil
}

// resolveData routes every leaf of the section's data object through the
// evaluator where it holds an expression.
func (e *Engine) resolveData(section map[string]any, docs, events []map[string]any) (map[string]any, error) {
	data, ok := schemaSection(section, "data")
	if !ok {
		return nil, nil
	}

	resolved := make(map[string]any, len(data))
	for key, value := range data {
		v, err := e.evaluator.resolveValue(value, docs, events)
		if err != nil {
			return nil, err
		}
		resolved[key] = v
	}

	return resolved, nil
}
