package swagger_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"

	"github.com/Astemirdum/lending-service/swagger"
)

func TestDocRegistered(t *testing.T) {
	doc, err := swag.ReadDoc(swagger.SwaggerInfo.InstanceName())
	require.NoError(t, err)

	var parsed struct {
		Paths map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(doc), &parsed))

	for path, method := range map[string]string{
		"/api/v1/loans":                 "post",
		"/api/v1/loans/{loanId}/return": "post",
		"/api/v1/members/{id}/loans":    "get",
		"/api/v1/books/{bookId}":        "put",
		"/api/v1/admin/consistency":     "get",
	} {
		assert.Contains(t, parsed.Paths[path], method, path)
	}
}
