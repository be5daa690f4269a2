package category

import (
	"os"
	"regexp"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// NameOverride maps an item-name pattern directly to a category, bypassing
// keyword scoring. Higher priority wins when several patterns match.
type NameOverride struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Priority int    `yaml:"priority"`

	re *regexp.Regexp
}

// Tables holds the keyword and override tables that drive detection.
type Tables struct {
	// Keywords maps canonical category to the phrases that indicate it.
	// Longer phrases score higher than single words.
	Keywords map[string][]string `yaml:"keywords"`
	// Overrides are name patterns checked before keyword scoring.
	Overrides []NameOverride `yaml:"overrides"`
}

// DefaultTables returns the embedded detection tables.
func DefaultTables() *Tables {
	t := &Tables{
		Keywords: map[string][]string{
			"vinyl_records":       {"vinyl", "record", "lp", "33 rpm", "45 rpm", "picture disc", "pressing"},
			"trading_cards":       {"pokemon", "charizard", "holo", "psa", "graded card", "booster", "topps", "first edition card"},
			"video_games":         {"nintendo", "playstation", "xbox", "sega", "cartridge", "cib", "game console"},
			"sneakers":            {"jordan", "nike", "yeezy", "deadstock", "og all", "sneaker"},
			"watches":             {"seiko", "rolex", "omega", "automatic movement", "chronograph", "wristwatch"},
			"jewelry":             {"14k", "18k", "sterling silver", "diamond", "necklace", "bracelet"},
			"musical_instruments": {"fender", "gibson", "stratocaster", "guitar", "synthesizer", "tube amp"},
			"vehicles":            {"odometer", "clean title", "low miles", "engine", "transmission"},
			"electronics":         {"laptop", "iphone", "camera lens", "receiver", "turntable cartridge", "speakers"},
			"books":               {"first edition", "hardcover", "signed copy", "paperback", "comic"},
			"toys":                {"lego", "action figure", "sealed box", "hot wheels", "plush"},
			"tools":               {"dewalt", "milwaukee", "makita", "cordless drill", "table saw"},
			"furniture":           {"mid century", "dresser", "armchair", "teak", "credenza"},
			"clothing":            {"vintage tee", "denim", "leather jacket", "selvedge", "nwt"},
			"sports_equipment":    {"titleist", "carbon frame", "shimano", "skis", "golf clubs"},
			"antiques":            {"victorian", "art deco", "cast iron", "patina"},
			"collectibles":        {"limited edition", "numbered", "memorabilia", "funko"},
		},
		Overrides: []NameOverride{
			{Pattern: `(?i)\bpsa\s*\d+\b`, Category: "trading_cards", Priority: 100},
			{Pattern: `(?i)\b(vin|vin#)\s*[a-z0-9]{11,17}\b`, Category: "vehicles", Priority: 90},
			{Pattern: `(?i)\b\d{4}\s+(ford|chevy|toyota|honda|bmw)\b`, Category: "vehicles", Priority: 80},
			{Pattern: `(?i)\bisbn[-\s]?\d`, Category: "books", Priority: 70},
		},
	}
	if err := t.compile(); err != nil {
		// Embedded patterns are static; a failure here is a programming error.
		panic(err)
	}
	return t
}

// LoadTables reads detection tables from a YAML file, falling back to the
// embedded defaults for any section the file omits.
func LoadTables(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "category: read tables %s", path)
	}

	var t Tables
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "category: parse tables")
	}

	defaults := DefaultTables()
	if len(t.Keywords) == 0 {
		t.Keywords = defaults.Keywords
	}
	if len(t.Overrides) == 0 {
		t.Overrides = defaults.Overrides
	}
	if err := t.compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// compile compiles override patterns and sorts them by descending priority.
func (t *Tables) compile() error {
	for i := range t.Overrides {
		re, err := regexp.Compile(t.Overrides[i].Pattern)
		if err != nil {
			return eris.Wrapf(err, "category: compile override %q", t.Overrides[i].Pattern)
		}
		t.Overrides[i].re = re
	}
	sort.SliceStable(t.Overrides, func(i, j int) bool {
		return t.Overrides[i].Priority > t.Overrides[j].Priority
	})
	return nil
}
