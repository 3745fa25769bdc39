package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	metaPattern  = regexp.MustCompile(`^([^ ]*) (.*), (.*)$`)
	dicePattern  = regexp.MustCompile(`\((\d+)d(\d+)(?: ([+-]) (\d+))?\)`)
	speedPattern = regexp.MustCompile(`(?:(\S+) )?(\d+) ft\.(?: \((\w+)\))?`)
)

var abilityNames = []string{"str", "dex", "con", "int", "wis", "cha"}

// DiceRoll is a hit dice expression such as 2d8+2.
type DiceRoll struct {
	Count int  `json:"count"`
	Sides int  `json:"sides"`
	Bonus *int `json:"bonus,omitempty"`
}

func (d DiceRoll) String() string {
	if d.Bonus == nil {
		return fmt.Sprintf("%dd%d", d.Count, d.Sides)
	}
	return fmt.Sprintf("%dd%d%+d", d.Count, d.Sides, *d.Bonus)
}

// Speed is one movement mode. Mode is empty for walking speed.
type Speed struct {
	Distance  int    `json:"distance"`
	Mode      string `json:"mode,omitempty"`
	Qualifier string `json:"qualifier,omitempty"`
}

// Creature is the parsed stat block of a creature detail page.
type Creature struct {
	Name            string    `json:"name"`
	SourceBook      string    `json:"source_book"`
	URL             string    `json:"url"`
	ChallengeRating *int      `json:"challenge_rating,omitempty"`
	Kind            string    `json:"kind"`
	Size            string    `json:"size"`
	Alignment       string    `json:"alignment"`
	ArmorClass      int       `json:"armor_class"`
	ArmorSource     string    `json:"armor_source,omitempty"`
	HitPoints       int       `json:"hit_points"`
	HitDice         *DiceRoll `json:"hit_dice,omitempty"`
	Speeds          []Speed   `json:"speeds"`
	// AbilityScores is keyed by three letter ability name. Nil when the page
	// has no ability block.
	AbilityScores map[string]int `json:"ability_scores,omitempty"`
	// SavingThrows is keyed like AbilityScores.
	SavingThrows map[string]int `json:"saving_throws,omitempty"`
	Skills       map[string]int `json:"skills,omitempty"`
	// Senses maps a sense to its range in feet.
	Senses            map[string]int `json:"senses,omitempty"`
	PassivePerception *int           `json:"passive_perception,omitempty"`
	Languages         []Language     `json:"languages,omitempty"`
	ChallengeXP       *int           `json:"challenge_xp,omitempty"`
	ProficiencyBonus  *int           `json:"proficiency_bonus,omitempty"`
	EnvironmentTags   []string       `json:"environment_tags,omitempty"`
	ImageURL          string         `json:"image_url,omitempty"`
}

type attribute struct {
	value string
	extra string
}

// ParseCreature parses a creature detail page. Source book and challenge
// rating are taken from the listing the page was reached from.
func ParseCreature(listing Listing, body string) (Creature, error) {
	doc, err := parseDocument(StageCreature, body)
	if err != nil {
		return Creature{}, err
	}
	block := doc.Find(".mon-stat-block").First()
	if block.Length() == 0 {
		return Creature{}, missing(StageCreature, "stat block")
	}
	header := block.Find(".mon-stat-block__header").First()
	if header.Length() == 0 {
		return Creature{}, missing(StageCreature, "header")
	}

	link := header.Find(".mon-stat-block__name > a.mon-stat-block__name-link").First()
	if link.Length() == 0 {
		return Creature{}, missing(StageCreature, "name link")
	}
	href, ok := link.Attr("href")
	if !ok {
		return Creature{}, missing(StageCreature, "name href")
	}

	meta, ok := text(header, ".mon-stat-block__meta")
	if !ok {
		return Creature{}, missing(StageCreature, "meta")
	}
	parts := metaPattern.FindStringSubmatch(meta)
	if parts == nil {
		return Creature{}, &Error{Stage: StageCreature, Field: "meta", Err: fmt.Errorf("%w: unrecognized meta %q", ErrNoSuchElement, meta)}
	}

	attrs := parseAttributes(block)
	creature := Creature{
		Name:            strings.TrimSpace(link.Text()),
		SourceBook:      listing.SourceBook,
		URL:             href,
		ChallengeRating: listing.ChallengeRating,
		Size:            parts[1],
		Kind:            parts[2],
		Alignment:       parts[3],
		AbilityScores:   parseAbilityScores(block),
		EnvironmentTags: parseEnvironmentTags(doc),
		ImageURL:        parseImageURL(doc),
	}
	creature.applyTidbits(parseTidbits(block))

	ac, ok := attrs["Armor Class"]
	if !ok {
		return Creature{}, missing(StageCreature, "armor class")
	}
	if creature.ArmorClass, err = strconv.Atoi(ac.value); err != nil {
		return Creature{}, &Error{Stage: StageCreature, Field: "armor class", Err: err}
	}
	creature.ArmorSource = strings.TrimSuffix(strings.TrimPrefix(ac.extra, "("), ")")

	hp, ok := attrs["Hit Points"]
	if !ok {
		return Creature{}, missing(StageCreature, "hit points")
	}
	if creature.HitPoints, err = strconv.Atoi(hp.value); err != nil {
		return Creature{}, &Error{Stage: StageCreature, Field: "hit points", Err: err}
	}
	creature.HitDice = ParseDice(hp.extra)

	creature.Speeds = ParseSpeeds(attrs["Speed"].value)
	return creature, nil
}

func parseAttributes(block *goquery.Selection) map[string]attribute {
	attrs := make(map[string]attribute)
	block.Find(".mon-stat-block__attributes .mon-stat-block__attribute").Each(func(_ int, s *goquery.Selection) {
		label, ok := text(s, ".mon-stat-block__attribute-label")
		if !ok {
			return
		}
		value, _ := text(s, ".mon-stat-block__attribute-data-value")
		extra, _ := text(s, ".mon-stat-block__attribute-data-extra")
		attrs[label] = attribute{value: value, extra: extra}
	})
	return attrs
}

func parseAbilityScores(block *goquery.Selection) map[string]int {
	abilities := block.Find(".mon-stat-block__stat-block .ability-block").First()
	if abilities.Length() == 0 {
		return nil
	}
	scores := make(map[string]int, len(abilityNames))
	for _, name := range abilityNames {
		raw, ok := text(abilities, ".ability-block__stat--"+name+" .ability-block__score")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			scores[name] = v
		}
	}
	if len(scores) == 0 {
		return nil
	}
	return scores
}

// ParseDice extracts a dice expression like "(2d8 + 2)". It returns nil when
// text holds none.
func ParseDice(text string) *DiceRoll {
	m := dicePattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	count, _ := strconv.Atoi(m[1])
	sides, _ := strconv.Atoi(m[2])
	roll := &DiceRoll{Count: count, Sides: sides}
	if m[4] != "" {
		bonus, _ := strconv.Atoi(m[4])
		if m[3] == "-" {
			bonus = -bonus
		}
		roll.Bonus = &bonus
	}
	return roll
}

// ParseSpeeds splits a comma separated speed list such as
// "30 ft., fly 60 ft. (hover)". Entries that do not look like a speed are
// skipped.
func ParseSpeeds(text string) []Speed {
	speeds := make([]Speed, 0, 2)
	for _, entry := range strings.Split(text, ",") {
		m := speedPattern.FindStringSubmatch(strings.TrimSpace(entry))
		if m == nil {
			continue
		}
		distance, _ := strconv.Atoi(m[2])
		speeds = append(speeds, Speed{Distance: distance, Mode: m[1], Qualifier: m[3]})
	}
	return speeds
}
