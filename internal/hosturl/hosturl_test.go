package hosturl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DefaultsToHTTPS(t *testing.T) {
	h, err := Parse("gitpod.example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://gitpod.example.com", h.String())

	_, err = Parse("https://")
	require.Error(t, err)
}

func TestAsAuthorize_QueryOrder(t *testing.T) {
	h := MustParse("https://gitpod.example.com")
	u := h.AsAuthorize("github.com", []string{"repo", "read:user"}, "")
	assert.Equal(t,
		"https://gitpod.example.com/api/authorize?returnTo=https%3A%2F%2Fgitpod.example.com%2Flogin-success&host=github.com&override=true&scopes=repo,read:user",
		u.String())
}

func TestAsWorkspaceAuth(t *testing.T) {
	h := MustParse("https://gitpod.example.com")
	assert.Equal(t, "https://gitpod.example.com/api/auth/workspace-cookie/i-1", h.AsWorkspaceAuth("i-1", false).String())
	assert.Equal(t, "https://gitpod.example.com/api/auth/workspace-cookie/i-1?redirect", h.AsWorkspaceAuth("i-1", true).String())
}

func TestServerEndpoint_Scheme(t *testing.T) {
	assert.Equal(t, "wss://gitpod.example.com/api/v1", MustParse("https://gitpod.example.com").ServerEndpoint().String())
	assert.Equal(t, "ws://127.0.0.1:3000/api/v1", MustParse("http://127.0.0.1:3000").ServerEndpoint().String())
}

func TestCallbackAndDeauthorize(t *testing.T) {
	h := MustParse("https://gitpod.example.com")
	assert.Equal(t, "https://gitpod.example.com/auth/gitlab.example.org/callback", h.CallbackURL("gitlab.example.org").String())
	assert.Contains(t, h.AsDeauthorize("github.com", "").String(), "/api/deauthorize?returnTo=")
	assert.Equal(t, "i-9_owner_", OwnerCookieMarker("i-9"))
}
