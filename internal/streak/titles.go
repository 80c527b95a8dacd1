package streak

// Rank is a journey title earned at a minimum position.
type Rank struct {
	Min   int
	Title string
}

// Ranks are ordered by Min.
var Ranks = []Rank{
	{Min: 0, Title: "जिज्ञासु"},
	{Min: 50, Title: "साधक"},
	{Min: 150, Title: "अभ्यासी"},
	{Min: 300, Title: "योगी"},
	{Min: 500, Title: "स्थितप्रज्ञ"},
	{Min: 700, Title: "तत्त्वदर्शी"},
}

// Title returns the highest rank reached at position.
func Title(position int) string {
	title := Ranks[0].Title
	for _, r := range Ranks {
		if position >= r.Min {
			title = r.Title
		}
	}
	return title
}

// NextRank returns the next rank above position, or false at the top.
func NextRank(position int) (Rank, bool) {
	for _, r := range Ranks {
		if r.Min > position {
			return r, true
		}
	}
	return Rank{}, false
}
