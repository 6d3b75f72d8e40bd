package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext(headers map[string]string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req
	return c
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"x-real-ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
		{"first public forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 198.51.100.8, 198.51.100.9"}, "198.51.100.8"},
		{"all private forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 192.168.1.4"}, "10.0.0.1"},
		{"no headers", nil, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetRealIP(testContext(tt.headers)))
		})
	}
}

func TestClientIdentifier(t *testing.T) {
	c := testContext(nil)
	assert.Equal(t, "user:abc", ClientIdentifier(c, "abc"))
	assert.Equal(t, "ip:203.0.113.9", ClientIdentifier(c, ""))
}

func TestGetUserAgent(t *testing.T) {
	assert.Equal(t, "Unknown", GetUserAgent(testContext(nil)))
	assert.Equal(t, "curl/8.0", GetUserAgent(testContext(map[string]string{"User-Agent": "curl/8.0"})))
}

func TestGenerateDeploymentSecrets(t *testing.T) {
	secrets, err := GenerateDeploymentSecrets()
	require.NoError(t, err)
	assert.Len(t, secrets.JWTSecret, 64)
	assert.Len(t, secrets.FlutterwaveSecretHash, 48)
	assert.NotEqual(t, secrets.JWTSecret[:48], secrets.FlutterwaveSecretHash)
}
