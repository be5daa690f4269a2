// Package category canonicalizes item categories and routes them to
// reference-data sources. Everything here is pure and in-memory.
package category

import "strings"

// General is the catch-all category for items nothing else claims.
const General = "general"

// normalizeRule pairs a predicate with the canonical key it produces. Rules
// are evaluated in order, most specific first; the order is load-bearing.
type normalizeRule struct {
	match func(s string) bool
	key   string
}

// normalizeRules is evaluated top to bottom. The vinyl rule must stay ahead
// of the vehicle rule: "vinyl records" contains the substring "vin" and
// would otherwise be routed as a vehicle.
var normalizeRules = []normalizeRule{
	{match: anySub("vinyl", "record", " lp", "turntable"), key: "vinyl_records"},
	{match: anySub("trading card", "pokemon", "magic the gathering", "baseball card", "sports card", "tcg"), key: "trading_cards"},
	{match: anySub("video game", "console", "nintendo", "playstation", "xbox", "sega", "game cartridge"), key: "video_games"},
	{match: anySub("sneaker", "trainers", "jordans", "running shoe"), key: "sneakers"},
	{match: anySub("watch", "wristwatch", "chronograph"), key: "watches"},
	{match: anySub("jewelry", "jewellery", "necklace", "bracelet", "earring"), key: "jewelry"},
	{match: anySub("guitar", "keyboard piano", "synthesizer", "instrument", "amplifier"), key: "musical_instruments"},
	{match: anyWord("car", "truck", "van", "suv", "motorcycle", "vehicle", "vehicles", "automobile", "vin"), key: "vehicles"},
	{match: anySub("laptop", "phone", "tablet", "camera", "electronic", "stereo", "headphone", "speaker"), key: "electronics"},
	{match: anySub("book", "novel", "comic", "manga", "magazine"), key: "books"},
	{match: anySub("toy", "lego", "action figure", "doll", "plush"), key: "toys"},
	{match: anySub("tool", "drill", "saw", "wrench"), key: "tools"},
	{match: anySub("furniture", "chair", "table", "dresser", "sofa", "desk"), key: "furniture"},
	{match: anySub("clothing", "apparel", "jacket", "shirt", "dress", "denim"), key: "clothing"},
	{match: anySub("golf", "bicycle", "bike", "ski", "fitness", "sports equipment", "exercise"), key: "sports_equipment"},
	{match: anySub("antique", "vintage"), key: "antiques"},
	{match: anySub("collectible", "memorabilia", "figurine"), key: "collectibles"},
}

// Normalize canonicalizes a free-text category label into exactly one
// canonical key. Rules run in fixed order; with no match the cleaned string
// is returned as-is (treated as already canonical). Idempotent.
func Normalize(raw string) string {
	cleaned := clean(raw)
	if cleaned == "" {
		return General
	}
	for _, rule := range normalizeRules {
		if rule.match(cleaned) {
			return rule.key
		}
	}
	return strings.ReplaceAll(cleaned, " ", "_")
}

// clean lowercases and collapses separators so rule predicates see a
// uniform space-separated form.
func clean(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ", "/", " ", ",", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// anySub returns a predicate matching any of the given substrings.
func anySub(subs ...string) func(string) bool {
	return func(s string) bool {
		for _, sub := range subs {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}
}

// anyWord returns a predicate matching any of the given whole words. Used
// for short terms like "car" that appear as substrings of unrelated labels.
func anyWord(words ...string) func(string) bool {
	return func(s string) bool {
		for _, field := range strings.Fields(s) {
			for _, w := range words {
				if field == w {
					return true
				}
			}
		}
		return false
	}
}
