package bluetooth

import (
	"testing"

	"github.com/bluetuith-org/adapterd/api/errorkinds"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfile(t *testing.T) {
	for _, p := range Profiles() {
		byName, err := ParseProfile(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, byName)

		byUUID, err := ParseProfile(p.UUID().String())
		require.NoError(t, err)
		assert.Equal(t, p, byUUID)
	}

	p, err := ParseProfile(" A2DP ")
	require.NoError(t, err)
	assert.Equal(t, ProfileA2DP, p)
}

func TestParseProfile_Invalid(t *testing.T) {
	_, err := ParseProfile("walkie-talkie")
	assert.ErrorIs(t, err, errorkinds.ErrInvalidProfile)

	_, err = ProfileFromUUID(uuid.New())
	assert.ErrorIs(t, err, errorkinds.ErrInvalidProfile)

	var p ProfileID
	assert.Error(t, p.UnmarshalText([]byte("none")))
}

func TestProfileID_IsAudio(t *testing.T) {
	audio := map[ProfileID]bool{
		ProfileA2DP:       true,
		ProfileHFP:        true,
		ProfileHearingAid: true,
	}

	for _, p := range Profiles() {
		assert.Equal(t, audio[p], p.IsAudio(), p.String())
	}

	assert.False(t, ProfileNone.Valid())
	assert.Equal(t, "none", ProfileNone.String())
}
