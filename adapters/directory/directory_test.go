package directory_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/openbp/engine"
	"github.com/openbp/engine/adapters/directory"
)

func TestUsersByID(t *testing.T) {
	var gotPath, gotTrace, gotAuth string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTrace = r.Header.Get("X-Trace-Id")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)

		err := json.NewEncoder(w).Encode([]engine.DirectoryUser{
			{ID: "u1", Name: "Alice", Ipn: "1234567890"},
		})
		require.NoError(t, err)
	}))
	defer srv.Close()

	cl := directory.New(srv.URL, "svc", "secret")

	ctx := engine.ContextWithTraceID(context.Background(), "trace-1")
	users, err := cl.UsersByID(ctx, []string{"u1"})
	jtest.RequireNil(t, err)

	require.Len(t, users, 1)
	require.Equal(t, "u1", users[0].ID)
	require.Equal(t, "Alice", users[0].Name)

	require.Equal(t, "/user/info/id", gotPath)
	require.Equal(t, "trace-1", gotTrace)
	require.NotEmpty(t, gotAuth)
	require.JSONEq(t, `{"ids":["u1"]}`, string(gotBody))
}

func TestUpdateUser(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl := directory.New(srv.URL, "svc", "secret")

	err := cl.UpdateUser(context.Background(), "u2", map[string]any{"isActive": false})
	jtest.RequireNil(t, err)

	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/user/info/u2", gotPath)
	require.JSONEq(t, `{"isActive":false}`, string(gotBody))
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	cl := directory.New(srv.URL, "svc", "secret")

	_, err := cl.Search(context.Background(), "alice")
	require.Error(t, err)
	require.Contains(t, err.Error(), "directory request failed")
}
