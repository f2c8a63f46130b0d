package repositories

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppConfigRepository(t *testing.T) {
	db := openTestDB(t)
	repo := NewAppConfigRepository(db)

	t.Run("should return empty string for a missing key", func(t *testing.T) {
		req := require.New(t)

		value, err := repo.Get("missing")
		req.NoError(err)
		req.Empty(value)
	})

	t.Run("should upsert on repeated Set", func(t *testing.T) {
		req := require.New(t)

		req.NoError(repo.Set("secret", "first"))
		req.NoError(repo.Set("secret", "second"))

		value, err := repo.Get("secret")
		req.NoError(err)
		req.Equal("second", value)
	})

	t.Run("should fall back for missing or malformed int values", func(t *testing.T) {
		req := require.New(t)

		value, err := repo.GetInt("entropy", 8)
		req.NoError(err)
		req.Equal(8, value)

		req.NoError(repo.Set("entropy", "not-a-number"))
		value, err = repo.GetInt("entropy", 8)
		req.NoError(err)
		req.Equal(8, value)
	})

	t.Run("should round-trip int values", func(t *testing.T) {
		req := require.New(t)

		req.NoError(repo.SetInt("entropy", 9))
		value, err := repo.GetInt("entropy", 8)
		req.NoError(err)
		req.Equal(9, value)
	})
}
