package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chess-vn/slduel/internal/aws/storage"
	"github.com/chess-vn/slduel/internal/domains/dtos"
	"github.com/chess-vn/slduel/internal/domains/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(userId string, pathParams map[string]string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		PathParameters: pathParams,
		RequestContext: events.APIGatewayProxyRequestContext{
			Authorizer: map[string]interface{}{
				"jwt": map[string]interface{}{
					"claims": map[string]interface{}{"sub": userId},
				},
			},
		},
	}
}

func TestHandler(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutUser(entities.User{Id: "alice", Username: "Alice"})
	userClient = store
	ctx := context.Background()

	resp, err := handler(ctx, request("alice", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user dtos.UserResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &user))
	assert.Equal(t, "Alice", user.Username)

	resp, err = handler(ctx, request("alice", map[string]string{"id": "bob"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
