package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacredlabyrinth/clansync/entity"
)

func TestRoundTripClan(t *testing.T) {
	c := JSON[*entity.Clan]{}
	in := &entity.Clan{
		Tag:          "acme",
		ColorTag:     "&4acme",
		Name:         "Acme Corp",
		Verified:     true,
		Balance:      1234.5,
		PackedAllies: "zulu|echo",
	}

	raw, err := c.Encode(in)
	require.NoError(t, err)

	out, ok := c.Decode(raw)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestDecodeMalformed(t *testing.T) {
	c := JSON[*entity.ClanPlayer]{}

	for _, raw := range []string{"", "not json", `{"uuid": 7}`, "{", `[1,2]`} {
		out, ok := c.Decode(raw)
		assert.False(t, ok, "input %q", raw)
		assert.Nil(t, out)
	}
}

func TestPartialDocumentStillDecodes(t *testing.T) {
	// older nodes may serialize fewer fields; unknown absence is fine
	c := JSON[*entity.Clan]{}
	out, ok := c.Decode(`{"tag":"acme"}`)
	require.True(t, ok)
	assert.Equal(t, "acme", out.Tag)
	assert.Zero(t, out.Balance)
}
