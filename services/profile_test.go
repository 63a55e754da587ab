package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"first_name": "Ada",
		"last_name": "Lovelace",
		"email": "ada@example.com",
		"phone": "+1 555 123 4567",
		"skill_years": {"go": "8"}
	}`), 0o644))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", profile.FullName())
	assert.Equal(t, "8", profile.SkillYears["go"])
}

func TestLoadProfileRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"last_name": "Lovelace"}`), 0o644))

	_, err := LoadProfile(path)
	assert.Error(t, err)
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadSiteOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sites:
  greenhouse.io:
    pronouns: She/Her
    "hear about": Job board
`), 0o644))

	overrides, err := LoadSiteOverrides(path)
	require.NoError(t, err)

	answer, ok := overrides.Lookup("https://boards.greenhouse.io/acme", "How did you hear about us?")
	require.True(t, ok)
	assert.Equal(t, "Job board", answer)
}

func TestLoadSiteOverridesMissingFileIsEmpty(t *testing.T) {
	overrides, err := LoadSiteOverrides(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	_, ok := overrides.Lookup("https://example.com", "anything")
	assert.False(t, ok)
}

func TestSiteOverrideLookupMatchesSubdomainsOnly(t *testing.T) {
	overrides := &SiteOverrides{Sites: map[string]map[string]string{
		"lever.co": {"pronouns": "They/Them"},
	}}

	_, ok := overrides.Lookup("https://notlever.co/x", "pronouns")
	assert.False(t, ok)

	answer, ok := overrides.Lookup("https://jobs.lever.co/x", "Your pronouns")
	require.True(t, ok)
	assert.Equal(t, "They/Them", answer)
}

func TestIsReservedToken(t *testing.T) {
	assert.True(t, IsReservedToken(TokenCredentialPassword))
	assert.True(t, IsReservedToken(TokenResumePath))
	assert.True(t, IsReservedToken(TokenGenerateCoverText))
	assert.False(t, IsReservedToken("hunter2"))
}
