package profiles_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orator/internal/profiles"
	"orator/internal/testhelpers"
)

func TestCreateAndGetProfile(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	repo := profiles.NewRepository(db)

	require.NoError(t, repo.Create(&profiles.Profile{UID: "user-a", DisplayName: "Ada"}))

	profile, err := repo.GetByUID("user-a")
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.DisplayName)

	_, err = repo.GetByUID("missing")
	assert.ErrorIs(t, err, profiles.ErrProfileNotFound)
}

func TestDisplayNameFallsBackToUID(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	repo := profiles.NewRepository(db)

	require.NoError(t, repo.Create(&profiles.Profile{UID: "user-a", DisplayName: "Ada"}))

	assert.Equal(t, "Ada", repo.DisplayName("user-a"))
	assert.Equal(t, "user-z", repo.DisplayName("user-z"))
}

func TestUpdateDisplayName(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	repo := profiles.NewRepository(db)

	require.NoError(t, repo.Create(&profiles.Profile{UID: "user-a", DisplayName: "Ada"}))

	updated, err := repo.UpdateDisplayName("user-a", "Ada L.")
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", updated.DisplayName)

	_, err = repo.UpdateDisplayName("missing", "Nobody")
	assert.ErrorIs(t, err, profiles.ErrProfileNotFound)
}

func TestRepositoryErrorsWhenTableMissing(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	repo := profiles.NewRepository(db)
	testhelpers.DropProfileTable(t, db)

	_, err := repo.GetByUID("user-a")
	assert.Error(t, err)
}
