package migrate

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_SortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0010_later.sql":  {Data: []byte("SELECT 1")},
		"migrations/0002_second.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("docs")},
		"migrations/sub/0001.sql":    {Data: []byte("SELECT 1")},
	}
	ms, err := list(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, Migration{Version: "0002_second", File: "0002_second.sql"}, ms[0])
	assert.Equal(t, "0010_later", ms[1].Version)

	_, err = list(fstest.MapFS{})
	require.Error(t, err)
}
