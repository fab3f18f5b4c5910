package models

import (
	"fmt"
	"strings"
)

// Category classifies a stored document. CategoryAny is a query wildcard
// and never appears on a stored document.
type Category string

const (
	CategoryAny          Category = "any"
	CategoryCharacter    Category = "character"
	CategoryLocation     Category = "location"
	CategoryCreature     Category = "creature"
	CategoryItem         Category = "item"
	CategoryEvent        Category = "event"
	CategoryOrganization Category = "organization"
	CategoryDeity        Category = "deity"
	CategorySpell        Category = "spell"
	CategoryGeneral      Category = "general"
)

// Categories lists every category in declaration order, wildcard first.
var Categories = []Category{
	CategoryAny,
	CategoryCharacter,
	CategoryLocation,
	CategoryCreature,
	CategoryItem,
	CategoryEvent,
	CategoryOrganization,
	CategoryDeity,
	CategorySpell,
	CategoryGeneral,
}

var categorySynonyms = map[string]Category{
	"characters":    CategoryCharacter,
	"npc":           CategoryCharacter,
	"npcs":          CategoryCharacter,
	"person":        CategoryCharacter,
	"people":        CategoryCharacter,
	"hero":          CategoryCharacter,
	"locations":     CategoryLocation,
	"place":         CategoryLocation,
	"places":        CategoryLocation,
	"city":          CategoryLocation,
	"cities":        CategoryLocation,
	"region":        CategoryLocation,
	"regions":       CategoryLocation,
	"creatures":     CategoryCreature,
	"monster":       CategoryCreature,
	"monsters":      CategoryCreature,
	"beast":         CategoryCreature,
	"beasts":        CategoryCreature,
	"items":         CategoryItem,
	"artifact":      CategoryItem,
	"artifacts":     CategoryItem,
	"artefact":      CategoryItem,
	"weapon":        CategoryItem,
	"weapons":       CategoryItem,
	"events":        CategoryEvent,
	"battle":        CategoryEvent,
	"battles":       CategoryEvent,
	"war":           CategoryEvent,
	"wars":          CategoryEvent,
	"organizations": CategoryOrganization,
	"organisation":  CategoryOrganization,
	"organisations": CategoryOrganization,
	"faction":       CategoryOrganization,
	"factions":      CategoryOrganization,
	"guild":         CategoryOrganization,
	"order":         CategoryOrganization,
	"deities":       CategoryDeity,
	"god":           CategoryDeity,
	"gods":          CategoryDeity,
	"goddess":       CategoryDeity,
	"spells":        CategorySpell,
	"magic":         CategorySpell,
	"lore of magic": CategorySpell,
	"ritual":        CategorySpell,
}

// ParseCategory resolves a user supplied category name. An empty string
// means CategoryAny. Unknown names are an error.
func ParseCategory(s string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return CategoryAny, nil
	}
	key = strings.Join(strings.Fields(key), " ")
	for _, c := range Categories {
		if string(c) == key {
			return c, nil
		}
	}
	if c, ok := categorySynonyms[key]; ok {
		return c, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// NormalizeCategory maps raw dataset vocabulary onto a storable category.
// Anything unrecognised, including the wildcard, becomes CategoryGeneral.
func NormalizeCategory(s string) Category {
	c, err := ParseCategory(s)
	if err != nil || c == CategoryAny {
		return CategoryGeneral
	}
	return c
}

// Valid reports whether c is one of the declared categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// IsAny reports whether c is the query wildcard. The zero value counts as any.
func (c Category) IsAny() bool {
	return c == "" || c == CategoryAny
}
