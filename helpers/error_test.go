package helpers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestFoldErrors(t *testing.T) {
	t.Parallel()
	assert.NoError(t, FoldErrors(nil))
	assert.NoError(t, FoldErrors([]error{nil, nil}))
	err := FoldErrors([]error{fmt.Errorf("first"), nil, fmt.Errorf("second %%d")})
	require.Error(t, err)
	assert.Equal(t, "first\nsecond %d", err.Error())
}

func TestCloseAll(t *testing.T) {
	t.Parallel()
	calls := 0
	ok := closerFunc(func() error { calls++; return nil })
	bad := closerFunc(func() error { calls++; return fmt.Errorf("busy") })
	err := CloseAll(ok, nil, bad)
	assert.Equal(t, 2, calls)
	require.Error(t, err)
	assert.Equal(t, "busy", err.Error())
}
