package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const passivePerception = "Passive Perception"

var (
	bonusPattern     = regexp.MustCompile(`^(.+?) ([+-]\d+)$`)
	rangePattern     = regexp.MustCompile(`^(.+?) (\d+) ft\.`)
	challengePattern = regexp.MustCompile(`^(\d+(?:/\d+)?) \(([\d,]+) XP\)`)
)

// Language is one spoken or telepathic language. RangeFt is set for languages
// with a reach, such as telepathy.
type Language struct {
	Name    string `json:"name"`
	RangeFt *int   `json:"range_ft,omitempty"`
}

// tidbits holds the labelled lines under the ability block, keyed by label.
type tidbits map[string]string

func parseTidbits(block *goquery.Selection) tidbits {
	out := make(tidbits)
	block.Find(".mon-stat-block__tidbits .mon-stat-block__tidbit").Each(func(_ int, s *goquery.Selection) {
		label, ok := text(s, ".mon-stat-block__tidbit-label")
		if !ok {
			return
		}
		data, _ := text(s, ".mon-stat-block__tidbit-data")
		out[label] = data
	})
	return out
}

// applyTidbits fills the creature fields carried by tidbits. Absent tidbits
// leave their fields empty.
func (c *Creature) applyTidbits(t tidbits) {
	if raw, ok := t["Saving Throws"]; ok {
		c.SavingThrows = ParseBonuses(raw, strings.ToLower)
	}
	if raw, ok := t["Skills"]; ok {
		c.Skills = ParseBonuses(raw, nil)
	}
	if raw, ok := t["Senses"]; ok {
		c.Senses, c.PassivePerception = ParseSenses(raw)
	}
	if raw, ok := t["Languages"]; ok {
		c.Languages = ParseLanguages(raw)
	}
	if raw, ok := t["Challenge"]; ok {
		if m := challengePattern.FindStringSubmatch(raw); m != nil {
			xp, err := strconv.Atoi(strings.ReplaceAll(m[2], ",", ""))
			if err == nil {
				c.ChallengeXP = &xp
			}
			// Fractional ratings fail Atoi and stay unset.
			if c.ChallengeRating == nil {
				if cr, err := strconv.Atoi(m[1]); err == nil {
					c.ChallengeRating = &cr
				}
			}
		}
	}
	if raw, ok := t["Proficiency Bonus"]; ok {
		if v, err := strconv.Atoi(strings.TrimPrefix(raw, "+")); err == nil {
			c.ProficiencyBonus = &v
		}
	}
}

// ParseBonuses splits a list such as "CON +6, INT +8" into a map of
// modifiers. key, when set, rewrites each name. Entries without a modifier
// are skipped.
func ParseBonuses(text string, key func(string) string) map[string]int {
	out := make(map[string]int)
	for _, entry := range strings.Split(text, ",") {
		m := bonusPattern.FindStringSubmatch(strings.TrimSpace(entry))
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		name := m[1]
		if key != nil {
			name = key(name)
		}
		out[name] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseSenses splits "Darkvision 120 ft., Passive Perception 20" into sense
// ranges in feet and the passive Perception score.
func ParseSenses(text string) (map[string]int, *int) {
	var (
		ranges  map[string]int
		passive *int
	)
	for _, entry := range strings.Split(text, ",") {
		entry = strings.TrimSpace(entry)
		if rest, ok := strings.CutPrefix(entry, passivePerception); ok {
			if v, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil {
				passive = &v
			}
			continue
		}
		m := rangePattern.FindStringSubmatch(entry)
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if ranges == nil {
			ranges = make(map[string]int)
		}
		ranges[m[1]] = v
	}
	return ranges, passive
}

// ParseLanguages splits a language list in page order. A dash means the
// creature speaks none.
func ParseLanguages(text string) []Language {
	var out []Language
	for _, entry := range strings.Split(text, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" || entry == "--" || entry == "-" || entry == "—" {
			continue
		}
		if m := rangePattern.FindStringSubmatch(entry); m != nil {
			if v, err := strconv.Atoi(m[2]); err == nil {
				out = append(out, Language{Name: m[1], RangeFt: &v})
				continue
			}
		}
		out = append(out, Language{Name: entry})
	}
	return out
}

func parseEnvironmentTags(doc *goquery.Document) []string {
	var tags []string
	doc.Find("footer .tags .environment-tag").Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			tags = append(tags, tag)
		}
	})
	return tags
}

func parseImageURL(doc *goquery.Document) string {
	href, _ := doc.Find(".details-aside .image a").First().Attr("href")
	return strings.TrimSpace(href)
}
