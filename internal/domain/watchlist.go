package domain

// Watchlist is the fixed set of symbols tracked each cycle. Held symbols that
// drop off this list are force-liquidated on the next cycle.
var Watchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA",
	"META", "TSLA", "AMD", "INTC", "NFLX",
	"CRM", "ORCL", "ADBE", "PYPL", "DIS",
	"BA", "JPM", "V", "WMT", "XOM",
}

// SymbolSector maps watch-list symbols to a coarse sector label for the
// reporting surface.
var SymbolSector = map[string]string{
	"AAPL": "Technology", "MSFT": "Technology", "GOOGL": "Technology",
	"AMZN": "Consumer", "NVDA": "Technology", "META": "Technology",
	"TSLA": "Automotive", "AMD": "Technology", "INTC": "Technology",
	"NFLX": "Media", "CRM": "Technology", "ORCL": "Technology",
	"ADBE": "Technology", "PYPL": "Financial", "DIS": "Media",
	"BA": "Industrial", "JPM": "Financial", "V": "Financial",
	"WMT": "Consumer", "XOM": "Energy",
}

var watchlistSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(Watchlist))
	for _, symbol := range Watchlist {
		set[symbol] = struct{}{}
	}
	return set
}()

// Tracked reports whether symbol is on the watch-list.
func Tracked(symbol string) bool {
	_, ok := watchlistSet[symbol]
	return ok
}
