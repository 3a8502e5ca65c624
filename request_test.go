package engine_test

import (
	"context"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
)

func TestProcessRequest(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	var got engine.ProviderRequest
	d.providers.Register(engine.ProviderRegisters, providerFunc(func(ctx context.Context, req engine.ProviderRequest) (any, error) {
		got = req
		return map[string]any{"recordId": "r1"}, nil
	}))

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeRequest,
		Schema: map[string]any{
			"request": map[string]any{
				"type":     engine.ProviderRegisters,
				"method":   engine.VerbCreate,
				"resource": "land-register",
				"data": map[string]any{
					"code":  "123",
					"owner": `func() string { return "u1" }`,
				},
			},
		},
	})

	require.True(t, e.Process(ctx, engine.Message{WorkflowID: "w1", EventTemplateID: "et1"}))

	require.Equal(t, engine.VerbCreate, got.Verb)
	require.Equal(t, "land-register", got.Resource)
	require.Equal(t, map[string]any{"code": "123", "owner": "u1"}, got.Data)

	events, err := d.events.ListByWorkflow(ctx, "w1")
	jtest.RequireNil(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Done)
	require.Contains(t, events[0].Data.Result, "request")
}

func TestProcessRequestUnknownVerb(t *testing.T) {
	e, d := setup(t)

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeRequest,
		Schema: map[string]any{
			"request": map[string]any{
				"type":   engine.ProviderRegisters,
				"method": "patch",
			},
		},
	})

	require.False(t, e.Process(context.Background(), engine.Message{WorkflowID: "w1", EventTemplateID: "et1"}))
}

func TestProcessRequestUnknownProvider(t *testing.T) {
	e, d := setup(t)

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeRequest,
		Schema: map[string]any{
			"request": map[string]any{
				"type":   "unconfigured",
				"method": engine.VerbGet,
			},
		},
	})

	require.False(t, e.Process(context.Background(), engine.Message{WorkflowID: "w1", EventTemplateID: "et1"}))
}

func TestProcessSendToExternalService(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	var got engine.ProviderRequest
	d.providers.Register(engine.ProviderExternalService, providerFunc(func(ctx context.Context, req engine.ProviderRequest) (any, error) {
		got = req
		return "accepted", nil
	}))

	d.templates.SeedEventTemplate(&engine.EventTemplate{
		ID:          "et1",
		EventTypeID: engine.EventTypeRequest,
		Schema: map[string]any{
			"sendToExternalService": map[string]any{
				"providerName": "edr",
				"service":      "registry",
				"method":       "check",
				"data":         map[string]any{"code": "123"},
			},
		},
	})

	require.True(t, e.Process(ctx, engine.Message{WorkflowID: "w1", EventTemplateID: "et1"}))

	require.Equal(t, "edr", got.Provider)
	require.Equal(t, "registry", got.Service)
	require.Equal(t, "check", got.Method)
	require.Equal(t, map[string]any{"code": "123"}, got.Data)
}

func TestDoRequestLogsCallDetail(t *testing.T) {
	e, d := setup(t)
	ctx := context.Background()

	callErr := &engine.ProviderCallError{
		URL:    "https://edr.example.com/api/check",
		Status: 502,
		Body:   `{"error":"upstream"}`,
		Err:    engine.ErrUnknownOperation,
	}
	d.providers.Register(engine.ProviderBlockchain, providerFunc(func(ctx context.Context, req engine.ProviderRequest) (any, error) {
		return nil, callErr
	}))

	_, err := e.DoRequest(ctx, engine.ProviderBlockchain, engine.ProviderRequest{Verb: engine.VerbGet})
	require.Error(t, err)

	// The failure is rethrown untouched and logged with the response detail.
	var gotErr *engine.ProviderCallError
	require.ErrorAs(t, err, &gotErr)
	require.Equal(t, 502, gotErr.Status)
	require.Equal(t, 1, d.logger.errorCount())
}
