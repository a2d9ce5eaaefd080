package config

var defaultJunk = []string{
	"cookie", "newsletter", "abonnieren", "werbung", "anzeige",
	"jetzt teilen", "mehr zum thema", "folgen sie uns",
}

// DefaultSources are the Swiss and German outlets used when no config file lists any.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{
			Name:             "Blick",
			BaseURL:          "https://www.blick.ch",
			Categories:       []string{"schweiz", "wirtschaft", "ausland", "politik", "digital", "life/wissen"},
			LinkSelector:     "a[href]",
			LinkPattern:      `-id\d+\.html$`,
			TitleSelector:    "h1",
			AbstractSelector: "article p:first-of-type",
			BodySelector:     "article",
			AuthorSelector:   "article a span",
			DateSelector:     "time",
			DateAttr:         "datetime",
			JunkPhrases:      defaultJunk,
			MaxArticles:      40,
		},
		{
			Name:             "20min",
			BaseURL:          "https://www.20min.ch",
			Categories:       []string{"front", "schweiz", "ausland", "wirtschaft", "digital"},
			LinkSelector:     "a[href]",
			LinkPattern:      `/story/`,
			TitleSelector:    "h1",
			AbstractSelector: "article header p",
			BodySelector:     "article",
			AuthorSelector:   "[class*=author]",
			DateSelector:     "time",
			DateAttr:         "datetime",
			JunkPhrases:      defaultJunk,
			MaxArticles:      40,
		},
		{
			Name:             "Tagesanzeiger",
			BaseURL:          "https://www.tagesanzeiger.ch",
			Categories:       []string{"zuerich", "schweiz", "international", "wirtschaft"},
			LinkSelector:     "a[href]",
			LinkPattern:      `-\d+$`,
			TitleSelector:    "h1",
			AbstractSelector: "article h2, article [class*=lead]",
			BodySelector:     "article",
			AuthorSelector:   "[class*=author] a",
			DateSelector:     "time",
			DateAttr:         "datetime",
			JunkPhrases:      defaultJunk,
			MaxArticles:      40,
		},
		{
			Name:             "dieZeit",
			BaseURL:          "https://www.zeit.de",
			FeedURL:          "https://newsfeed.zeit.de/index",
			TitleSelector:    "h1",
			AbstractSelector: ".summary",
			BodySelector:     ".article-body",
			AuthorSelector:   "[itemprop=author]",
			DateSelector:     "time",
			DateAttr:         "datetime",
			JunkPhrases:      defaultJunk,
			MaxArticles:      40,
		},
	}
}
