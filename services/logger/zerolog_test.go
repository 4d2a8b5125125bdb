package logsvc

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/examoffice/core/user"
)

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLoggerTo(&buf, "info")

	logger.Debug("dropped")
	logger.Error(
		"closing session",
		errors.New("boom"),
		map[string]interface{}{"session_id": "s1"},
		user.User{ID: 7, Username: "registrar"},
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "closing session", line["message"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "s1", line["session_id"])
	assert.Equal(t, map[string]interface{}{"id": float64(7), "username": "registrar"}, line["user"])
}
