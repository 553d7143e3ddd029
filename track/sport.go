package track

import "strings"

// Sport is the FIT sport code. The table below is the closed set of codes this
// package knows a canonical token for.
type Sport uint8

const (
	SportGeneric Sport = iota
	SportRunning
	SportCycling
	SportTransition
	SportFitnessEquipment
	SportSwimming
	SportBasketball
	SportSoccer
	SportTennis
	SportAmericanFootball
	SportTraining
	SportWalking
	SportCrossCountrySkiing
	SportAlpineSkiing
	SportSnowboarding
	SportRowing
	SportMountaineering
	SportHiking
	SportMultisport
	SportPaddling
	SportFlying
	SportEBiking
)

var sportTokens = [...]string{
	SportGeneric:            "generic",
	SportRunning:            "running",
	SportCycling:            "cycling",
	SportTransition:         "transition",
	SportFitnessEquipment:   "fitness_equipment",
	SportSwimming:           "swimming",
	SportBasketball:         "basketball",
	SportSoccer:             "soccer",
	SportTennis:             "tennis",
	SportAmericanFootball:   "american_football",
	SportTraining:           "training",
	SportWalking:            "walking",
	SportCrossCountrySkiing: "cross_country_skiing",
	SportAlpineSkiing:       "alpine_skiing",
	SportSnowboarding:       "snowboarding",
	SportRowing:             "rowing",
	SportMountaineering:     "mountaineering",
	SportHiking:             "hiking",
	SportMultisport:         "multisport",
	SportPaddling:           "paddling",
	SportFlying:             "flying",
	SportEBiking:            "e_biking",
}

// sportAliases maps free-text names seen in GPX <type> elements to tokens.
var sportAliases = map[string]string{
	"run":               "running",
	"trail_running":     "running",
	"ride":              "cycling",
	"biking":            "cycling",
	"bike":              "cycling",
	"road_biking":       "cycling",
	"mountain_biking":   "cycling",
	"hike":              "hiking",
	"walk":              "walking",
	"swim":              "swimming",
	"ski":               "alpine_skiing",
	"nordic_skiing":     "cross_country_skiing",
	"kayaking":          "paddling",
	"canoeing":          "paddling",
	"stand_up_paddling": "paddling",
	"ebike":             "e_biking",
	"e_bike":            "e_biking",
}

// String returns the canonical token, or "" for codes outside the table.
func (s Sport) String() string {
	if int(s) < len(sportTokens) {
		return sportTokens[s]
	}
	return ""
}

// SportFromCode looks up a FIT sport code.
func SportFromCode(code uint8) (Sport, bool) {
	if int(code) < len(sportTokens) {
		return Sport(code), true
	}
	return 0, false
}

// NormalizeSport lowercases free text and maps it to a canonical token when
// one is known. Unknown names are returned lowercased with separators folded.
func NormalizeSport(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	for _, token := range sportTokens {
		if s == token {
			return token
		}
	}
	if token, ok := sportAliases[s]; ok {
		return token
	}
	return s
}
