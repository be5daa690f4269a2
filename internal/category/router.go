package category

// Reference-source identifiers used by the cascade tables. The concrete
// clients live in internal/reference; the router only supplies ordering.
const (
	SourceDiscogs       = "discogs"
	SourcePriceCharting = "pricecharting"
	SourceTCGPlayer     = "tcgplayer"
	SourceStockX        = "stockx"
	SourceChrono24      = "chrono24"
	SourceAbeBooks      = "abebooks"
	SourceBrickLink     = "bricklink"
	SourceEbaySold      = "ebay_sold"
)

// DefaultMaxCascade caps how many sources a cascade may name.
const DefaultMaxCascade = 3

// cascades maps canonical category to its ordered reference-source cascade,
// primary source first.
var cascades = map[string][]string{
	"vinyl_records":       {SourceDiscogs, SourceEbaySold},
	"trading_cards":       {SourceTCGPlayer, SourcePriceCharting, SourceEbaySold},
	"video_games":         {SourcePriceCharting, SourceEbaySold},
	"sneakers":            {SourceStockX, SourceEbaySold},
	"watches":             {SourceChrono24, SourceEbaySold},
	"books":               {SourceAbeBooks, SourceEbaySold},
	"toys":                {SourceBrickLink, SourceEbaySold},
	"collectibles":        {SourceEbaySold, SourcePriceCharting},
	"electronics":         {SourceEbaySold},
	"musical_instruments": {SourceEbaySold},
	"antiques":            {SourceEbaySold},
}

// Router maps a canonical category to the ordered cascade of reference
// sources to query. It is a pure lookup; cascade execution belongs to the
// caller so the router stays side-effect-free and independently testable.
type Router struct {
	maxCascade int
}

// NewRouter creates a router. maxCascade ≤ 0 uses DefaultMaxCascade.
func NewRouter(maxCascade int) *Router {
	if maxCascade <= 0 {
		maxCascade = DefaultMaxCascade
	}
	return &Router{maxCascade: maxCascade}
}

// Route returns the ordered reference-source cascade for a canonical
// category. Unmapped categories fall back to the single general-purpose
// marketplace source. The result never exceeds the configured maximum.
func (r *Router) Route(canonical string) []string {
	sources, ok := cascades[canonical]
	if !ok {
		return []string{SourceEbaySold}
	}
	if len(sources) > r.maxCascade {
		sources = sources[:r.maxCascade]
	}
	out := make([]string, len(sources))
	copy(out, sources)
	return out
}
