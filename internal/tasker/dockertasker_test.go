package tasker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadBuildID_ExtractsFinalAuxID(t *testing.T) {
	stream := strings.NewReader(`
{"stream":"Step 1/2 : FROM fedora\n"}
{"aux":{"ID":"sha256:intermediate"}}
{"stream":"Step 2/2 : RUN true\n"}
{"aux":{"ID":"sha256:final"}}
`)
	id, err := readBuildID(stream)
	require.NoError(t, err)
	assert.Equal(t, "sha256:final", id)
}

func TestReadBuildID_SurfacesDaemonError(t *testing.T) {
	stream := strings.NewReader(`{"error":"no such file or directory"}`)
	_, err := readBuildID(stream)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such file or directory")
}

func TestAnonymousAuth_ProducesDecodableBase64(t *testing.T) {
	auth := anonymousAuth(false)
	assert.NotEmpty(t, auth)
	auth2 := anonymousAuth(true)
	assert.Equal(t, auth, auth2, "insecure flag does not currently change the auth payload")
}
