package geocode

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// placeAliases maps known spellings of Tunisian places to the name the
// geocoder resolves best. Keys are lowercase.
var placeAliases = map[string]string{
	// cities
	"l'aouina":     "La Marsa",
	"aouina":       "La Marsa",
	"menzah":       "El Menzah",
	"manar":        "El Manar",
	"soukra":       "La Soukra",
	"mnihla":       "Mnihla",
	"bizerte nord": "Bizerte",

	// governorates
	"tunis":     "Tunis",
	"ariana":    "Ariana",
	"ben arous": "Ben Arous",
	"manouba":   "Manouba",
	"bizerte":   "Bizerte",
	"nabeul":    "Nabeul",
	"sousse":    "Sousse",
}

// NormalizePlace returns the canonical spelling of a place name: the alias
// when one is known, otherwise the trimmed name in title case.
func NormalizePlace(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ""
	}
	if alias, ok := placeAliases[strings.ToLower(trimmed)]; ok {
		return alias
	}
	// Casers keep state, so one per call
	return cases.Title(language.French).String(trimmed)
}
