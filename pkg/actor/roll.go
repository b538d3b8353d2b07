package actor

import (
	"fmt"
	"maps"

	"github.com/jwebster45206/d20"
)

var abilityAbbreviations = map[string]string{
	"strength":     "str",
	"dexterity":    "dex",
	"constitution": "con",
	"intelligence": "int",
	"wisdom":       "wis",
	"charisma":     "cha",
}

// NewSheet builds the d20.Actor used to read roll data for a record
func NewSheet(r *Record) (*d20.Actor, error) {
	if r == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}

	allAttrs := r.Stats.ToAttributes()
	maps.Copy(allAttrs, r.Attributes)

	// Templates and NPC stubs often carry no HP or AC; they roll as unarmored
	maxHP := max(r.MaxHP, 1)
	ac := r.AC
	if ac < 1 {
		ac = 10
	}

	sheet, err := d20.NewActor(r.ID).
		WithHP(maxHP).
		WithAC(ac).
		WithAttributes(allAttrs).
		WithCombatModifiers(r.CombatModifiers).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build actor: %w", err)
	}

	if r.HP > 0 && r.HP < maxHP {
		if err := sheet.SetHP(r.HP); err != nil {
			return nil, fmt.Errorf("failed to set HP: %w", err)
		}
	}
	return sheet, nil
}

// RollData returns the numeric context formulas are evaluated against.
//
// Keys:
//
//	level, prof, hp, max_hp, ac
//	<attribute>            every attribute of the sheet (strength, stealth, ...)
//	abilities.<abbr>.value ability score (abilities.str.value)
//	abilities.<abbr>.mod   ability modifier (abilities.str.mod)
func RollData(r *Record) (map[string]float64, error) {
	sheet, err := NewSheet(r)
	if err != nil {
		return nil, err
	}

	data := map[string]float64{
		"level":  float64(r.Level),
		"prof":   float64(ProficiencyBonus(r.Level)),
		"hp":     float64(sheet.HP()),
		"max_hp": float64(sheet.MaxHP()),
		"ac":     float64(sheet.AC()),
	}

	keys := r.Stats.ToAttributes()
	maps.Copy(keys, r.Attributes)
	for key := range keys {
		if val, ok := sheet.Attribute(key); ok {
			data[key] = float64(val)
		}
	}

	for ability, abbr := range abilityAbbreviations {
		score, ok := sheet.Attribute(ability)
		if !ok {
			continue
		}
		data["abilities."+abbr+".value"] = float64(score)
		data["abilities."+abbr+".mod"] = float64(AbilityModifier(score))
	}

	return data, nil
}

// AbilityModifier is floor((score - 10) / 2)
func AbilityModifier(score int) int {
	diff := score - 10
	if diff < 0 && diff%2 != 0 {
		return diff/2 - 1
	}
	return diff / 2
}

// ProficiencyBonus for a character level; levels below 1 count as 1
func ProficiencyBonus(level int) int {
	if level < 1 {
		level = 1
	}
	return 2 + (level-1)/4
}
