package card

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	all := c.All()
	require.Len(t, all, 10)
	assert.Equal(t, "card_001", all[0].ID)
	assert.Equal(t, "card_010", all[9].ID)

	bolt, ok := c.Lookup("card_003")
	require.True(t, ok)
	assert.Equal(t, "Lightning Bolt", bolt.Name)
	assert.Equal(t, TypeSpell, bolt.Type)
	assert.Equal(t, Effect{Kind: EffectDamage, Amount: 3}, bolt.Effect)

	potion, _ := c.Lookup("card_005")
	assert.Equal(t, Effect{Kind: EffectHeal, Amount: 4}, potion.Effect)
	shield, _ := c.Lookup("card_007")
	assert.Equal(t, Effect{Kind: EffectShield, Amount: 3}, shield.Effect)

	dragon, _ := c.Lookup("card_004")
	assert.Equal(t, RarityLegendary, dragon.Rarity)
	assert.Equal(t, 8, dragon.Attack)
}

func TestInstantiateUnknown(t *testing.T) {
	card := Default().Instantiate("card_999")
	assert.Equal(t, PlaceholderID, card.ID)
	assert.Equal(t, "Unknown Card", card.Name)
	assert.Equal(t, 1, card.Attack)
	assert.Equal(t, 1, card.Defense)
	assert.Equal(t, 1, card.ManaCost)
	assert.True(t, card.IsCreature())
}

func TestInstancesAreIndependent(t *testing.T) {
	c := Default()
	cards := c.Build([]string{"card_001", "card_001"})
	require.Len(t, cards, 2)

	cards[0].Defense -= 10
	cards[0].UsedThisTurn = true
	assert.True(t, cards[0].IsDead())
	assert.Equal(t, 3, cards[1].Defense)
	assert.False(t, cards[1].UsedThisTurn)

	def, _ := c.Lookup("card_001")
	assert.Equal(t, 3, def.Defense)
}

func TestCustomCatalogOverride(t *testing.T) {
	base := Default().All()
	zeroBolt := base[2]
	zeroBolt.ManaCost = 0

	c := NewCatalog(append(base, zeroBolt)...)
	assert.Len(t, c.All(), 10)
	d, _ := c.Lookup("card_003")
	assert.Equal(t, 0, d.ManaCost)
	// 内置目录不受影响
	orig, _ := Default().Lookup("card_003")
	assert.Equal(t, 2, orig.ManaCost)
}

func TestUnknown(t *testing.T) {
	assert.Equal(t, []string{"x"}, Default().Unknown([]string{"card_001", "x"}))
	assert.Empty(t, Default().Unknown([]string{"card_002"}))
	assert.Len(t, Default().IDs(), 10)
}
