package query

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/twinctl/internal/registry/registrytest"
	"github.com/vk/twinctl/internal/twins"
	"github.com/vk/twinctl/internal/twins/twinstest"
)

func TestQuery(t *testing.T) {
	// --- Arrange ---
	srv := twinstest.NewServer(t)
	srv.PageSize = 1
	srv.PutTwin("a", "dtmi:example:Space;1", nil)
	srv.PutTwin("b", "dtmi:example:Space;1", nil)
	env, out := registrytest.NewEnv(t, srv)

	// --- Act ---
	err := Query(context.Background(), env, nil)

	// --- Assert ---
	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, "Submitting query: SELECT * FROM DIGITALTWINS...")
	assert.Equal(t, 2, strings.Count(text, "Response:"))
	assert.True(t, strings.HasSuffix(text, "End Query\n"))
}

func TestQuery_JoinsWords(t *testing.T) {
	srv := twinstest.NewServer(t)
	srv.PutTwin("a", "dtmi:example:Space;1", nil)
	srv.PutTwin("b", "dtmi:example:Space;1", nil)
	env, out := registrytest.NewEnv(t, srv)

	require.NoError(t, Query(context.Background(), env, strings.Fields("SELECT * FROM DIGITALTWINS WHERE $dtId = 'b'")))

	assert.Equal(t, 1, strings.Count(out.String(), "Response:"))
	assert.Contains(t, out.String(), `"$dtId": "b"`)
}

func TestQuery_ServiceError(t *testing.T) {
	srv := twinstest.NewServer(t)
	srv.Fail("POST", "/query", 400)
	env, _ := registrytest.NewEnv(t, srv)

	err := Query(context.Background(), env, nil)

	var apiErr *twins.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
}
