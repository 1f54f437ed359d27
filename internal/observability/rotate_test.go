package observability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingSinkWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sv2d.log")
	sink, err := NewRotatingSink(path, 1<<20, 3)
	require.NoError(t, err)
	defer sink.Close()

	n, err := sink.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
