package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckExisting(t *testing.T) {
	t.Run("clean directory passes", func(t *testing.T) {
		chdirTemp(t)
		assert.NoError(t, CheckExisting())
	})

	t.Run("existing config is reported", func(t *testing.T) {
		chdirTemp(t)
		require.NoError(t, os.WriteFile("loft.yml", []byte("version: \"1\"\n"), 0644))

		err := CheckExisting()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "loft.yml")
		assert.Contains(t, err.Error(), "loft init --force")
	})

	t.Run("existing inbox example is reported", func(t *testing.T) {
		chdirTemp(t)
		require.NoError(t, os.MkdirAll("inbox", 0755))
		require.NoError(t, os.WriteFile(filepath.Join("inbox", "change.yml.example"), []byte("writes: {}\n"), 0644))

		err := CheckExisting()
		require.Error(t, err)
		assert.Contains(t, err.Error(), filepath.Join("inbox", "change.yml.example"))
	})

	t.Run("initialized project is detected", func(t *testing.T) {
		chdirTemp(t)
		require.NoError(t, Initialize(false))
		assert.Error(t, CheckExisting())
	})
}
