// Package httpprovider implements engine.Provider over HTTP, for both the
// typed resource providers (registers, blockchain, register keys) and the
// generic external-service provider configured from YAML.
package httpprovider

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"

	"github.com/openbp/engine"
)

const (
	headerTraceID = "X-Trace-Id"

	defaultTimeout = 30 * time.Second
)

// REST is a provider addressing one upstream with resource-oriented URLs:
// get and delete target <baseURL>/<resource>, create and update post the
// resolved data to it.
type REST struct {
	baseURL string
	auth    BasicAuth
	client  *http.Client
}

var _ engine.Provider = (*REST)(nil)

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func NewREST(baseURL string, auth BasicAuth) *REST {
	return &REST{
		baseURL: baseURL,
		auth:    auth,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (p *REST) Do(ctx context.Context, req engine.ProviderRequest) (any, error) {
	method, hasBody, err := httpVerb(req.Verb)
	if err != nil {
		return nil, err
	}

	url := p.baseURL + "/" + req.Resource
	var body []byte
	if hasBody {
		body, err = engine.Marshal(&req.Data)
		if err != nil {
			return nil, err
		}
	}

	return call(ctx, p.client, method, url, p.auth, body)
}

func httpVerb(verb string) (method string, hasBody bool, err error) {
	switch verb {
	case engine.VerbGet:
		return http.MethodGet, false, nil
	case engine.VerbCreate:
		return http.MethodPost, true, nil
	case engine.VerbUpdate:
		return http.MethodPut, true, nil
	case engine.VerbDelete:
		return http.MethodDelete, false, nil
	default:
		return "", false, errors.New("unsupported request verb", j.KV("verb", verb))
	}
}

// Config maps external-service provider names to their services and method
// endpoints. It is loaded once at process start.
type Config struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	BaseURL  string                   `yaml:"baseUrl"`
	Auth     BasicAuth                `yaml:"auth"`
	Services map[string]ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Methods map[string]string `yaml:"methods"`
}

func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read provider config", j.KV("path", path))
	}

	return ParseConfig(b)
}

func ParseConfig(b []byte) (Config, error) {
	var conf Config
	err := yaml.Unmarshal(b, &conf)
	if err != nil {
		return Config{}, errors.Wrap(err, "parse provider config")
	}

	return conf, nil
}

// External routes by the request's provider, service and method names to the
// endpoint the config declares, and posts the resolved data there.
type External struct {
	conf   Config
	client *http.Client
}

var _ engine.Provider = (*External)(nil)

func NewExternal(conf Config) *External {
	return &External{
		conf:   conf,
		client: &http.Client{Timeout: defaultTimeout},
	}
}

func (p *External) Do(ctx context.Context, req engine.ProviderRequest) (any, error) {
	prov, ok := p.conf.Providers[req.Provider]
	if !ok {
		return nil, errors.Wrap(engine.ErrUnknownProvider, "", j.KV("provider", req.Provider))
	}
	svc, ok := prov.Services[req.Service]
	if !ok {
		return nil, errors.Wrap(engine.ErrUnknownProvider, "service not configured", j.MKV{
			"provider": req.Provider,
			"service":  req.Service,
		})
	}
	path, ok := svc.Methods[req.Method]
	if !ok {
		return nil, errors.Wrap(engine.ErrUnknownProvider, "method not configured", j.MKV{
			"provider": req.Provider,
			"service":  req.Service,
			"method":   req.Method,
		})
	}

	body, err := engine.Marshal(&req.Data)
	if err != nil {
		return nil, err
	}

	return call(ctx, p.client, http.MethodPost, prov.BaseURL+path, prov.Auth, body)
}

func call(ctx context.Context, client *http.Client, method, url string, auth BasicAuth, body []byte) (any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if auth.Username != "" {
		req.SetBasicAuth(auth.Username, auth.Password)
	}
	if traceID := engine.TraceIDFromContext(ctx); traceID != "" {
		req.Header.Set(headerTraceID, traceID)
	}

	res, err := client.Do(req)
	if err != nil {
		return nil, &engine.ProviderCallError{URL: url, Err: err}
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &engine.ProviderCallError{URL: url, Status: res.StatusCode, Err: err}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &engine.ProviderCallError{
			URL:    url,
			Status: res.StatusCode,
			Body:   string(b),
			Err:    errors.New("upstream returned error status"),
		}
	}

	if len(b) == 0 {
		return nil, nil
	}

	var out any
	if err := engine.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return out, nil
}
