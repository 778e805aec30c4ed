package battle

import (
	"github.com/wfunc/card-battle/internal/game/card"
)

// effectFunc 法术效果结算
type effectFunc func(caster, opponent *PlayerState, amount int)

var effects = map[card.EffectKind]effectFunc{
	card.EffectDamage: func(_, opponent *PlayerState, amount int) {
		opponent.damage(amount)
	},
	card.EffectHeal: func(caster, _ *PlayerState, amount int) {
		caster.heal(amount)
	},
	// 护盾没有独立的护甲值，按回血结算
	card.EffectShield: func(caster, _ *PlayerState, amount int) {
		caster.heal(amount)
	},
}

// applyEffect 结算法术，未知效果不产生任何作用
func applyEffect(c card.Card, caster, opponent *PlayerState) {
	if fn, ok := effects[c.Effect.Kind]; ok {
		fn(caster, opponent, c.Effect.Amount)
	}
}
