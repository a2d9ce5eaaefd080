package cluster

import (
	"strings"
	"testing"
	"time"

	"github.com/deusflow/newsreel/internal/domain"
	"github.com/deusflow/newsreel/internal/similarity"
	"github.com/deusflow/newsreel/internal/textnorm"
)

var today = time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)

func art(id, source string, published time.Time, tags ...string) domain.Article {
	return domain.Article{
		ID:          id,
		Source:      source,
		URL:         "https://" + source + ".example/" + id,
		Title:       "Title " + id,
		Abstract:    "Abstract " + id,
		Text:        "Body of " + id + "\n![Bild " + id + "](https://img.example/" + id + ".jpg)",
		PublishedAt: published,
		Tags:        tags,
	}
}

// tableMatcher returns fixed ratios per unordered id pair and counts calls.
type tableMatcher struct {
	ratios map[string]float64
	calls  int
}

func key(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (m *tableMatcher) Match(a, b domain.Article) (similarity.Scores, bool) {
	m.calls++
	r := m.ratios[key(a.ID, b.ID)]
	sc := similarity.Scores{Ratio: r, SetRatio: r}
	return sc, similarity.NewScorer(0.6).IsMatch(sc)
}

func TestScenarioOneClusterOfTwo(t *testing.T) {
	a := art("a", "blick", today)
	b := art("b", "20min", today.Add(-24*time.Hour))
	c := art("c", "tagi", today)

	m := &tableMatcher{ratios: map[string]float64{
		key("a", "b"): 0.7,
		key("a", "c"): 0.1,
		key("b", "c"): 0.1,
	}}

	recent, window := Partition(today, 14, []domain.Article{a, b, c})
	e := NewEngine(NewFuzzyStrategy(m), 14)
	clusters := e.Run(recent, window)

	if len(clusters) != 1 {
		t.Fatalf("want 1 cluster, got %d", len(clusters))
	}
	got := clusters[0]
	if len(got.Members) != 2 {
		t.Fatalf("want 2 members, got %+v", got.Members)
	}
	for _, mem := range got.Members {
		if mem.ArticleID == "c" {
			t.Errorf("unrelated article was clustered")
		}
	}
	if got.Members[0].ArticleID != "a" {
		t.Errorf("anchor = %s, want the recent article a", got.Members[0].ArticleID)
	}
	if got.Title != "Title a" || got.Status != domain.ClusterFinalized || got.Strategy != "fuzzy" {
		t.Errorf("cluster metadata = %+v", got)
	}
	if len(got.Images) != 2 {
		t.Errorf("images not aggregated: %+v", got.Images)
	}
}

func TestClustersHaveUniqueURLsAndAtLeastTwoMembers(t *testing.T) {
	var arts []domain.Article
	ratios := map[string]float64{}
	for i := 0; i < 8; i++ {
		id := string(rune('a' + i))
		published := today
		if i%2 == 1 {
			published = today.AddDate(0, 0, -i)
		}
		arts = append(arts, art(id, []string{"blick", "20min", "tagi"}[i%3], published))
	}
	// two groups: even ids, odd ids
	for i := range arts {
		for j := range arts {
			if i != j && i%2 == j%2 {
				ratios[key(arts[i].ID, arts[j].ID)] = 0.9
			}
		}
	}

	recent, window := Partition(today, 14, arts)
	clusters := NewEngine(NewFuzzyStrategy(&tableMatcher{ratios: ratios}), 14).Run(recent, window)
	if len(clusters) == 0 {
		t.Fatal("expected clusters")
	}

	seen := map[string]string{}
	for _, c := range clusters {
		if len(c.Members) < 2 {
			t.Errorf("cluster %s has %d members", c.ID, len(c.Members))
		}
		urls := map[string]bool{}
		for _, m := range c.Members {
			if urls[m.URL] {
				t.Errorf("cluster %s repeats %s", c.ID, m.URL)
			}
			urls[m.URL] = true
			if other, ok := seen[m.URL]; ok && other != c.ID {
				t.Errorf("%s is in clusters %s and %s", m.URL, other, c.ID)
			}
			seen[m.URL] = c.ID
		}
	}
}

func TestExistingClustersAreNeverMerged(t *testing.T) {
	a1, b1 := art("a1", "blick", today), art("b1", "20min", today)
	a2, b2 := art("a2", "tagi", today), art("b2", "zeit", today)

	m := &tableMatcher{ratios: map[string]float64{key("a1", "b2"): 1, key("a2", "b1"): 1}}
	p := newFuzzyPass(m)

	c1 := newCluster(a1)
	c2 := newCluster(a2)
	for _, pair := range []struct {
		c    *domain.Cluster
		a, b domain.Article
	}{{c1, a1, b1}, {c2, a2, b2}} {
		p.clusters = append(p.clusters, pair.c)
		p.anchors[pair.c] = pair.a
		p.byURL[pair.a.URL] = pair.c
		p.add(pair.c, pair.b, similarity.Scores{Ratio: 1})
	}

	p.consider(a1, b2)
	p.consider(b2, a1)
	p.consider(a2, b1)

	if m.calls != 0 {
		t.Errorf("matcher called %d times for already clustered pairs", m.calls)
	}
	if len(c1.Members) != 2 || len(c2.Members) != 2 {
		t.Errorf("clusters changed: c1=%v c2=%v", c1.ArticleIDs(), c2.ArticleIDs())
	}
	if c1.Members[1].ArticleID != "b1" || c2.Members[1].ArticleID != "b2" {
		t.Errorf("membership changed: c1=%v c2=%v", c1.ArticleIDs(), c2.ArticleIDs())
	}
}

func TestAbsorbTestsAgainstAnchor(t *testing.T) {
	a, b, c := art("a", "blick", today), art("b", "20min", today), art("c", "tagi", today)
	// c matches b but not the anchor a
	m := &tableMatcher{ratios: map[string]float64{key("a", "b"): 0.8, key("b", "c"): 0.95, key("a", "c"): 0.2}}

	p := newFuzzyPass(m)
	p.consider(a, b)
	p.consider(b, c)

	if len(p.clusters) != 1 || len(p.clusters[0].Members) != 2 {
		t.Fatalf("c should not be absorbed through a non-anchor member: %+v", p.clusters)
	}

	m.ratios[key("a", "c")] = 0.65
	p.consider(b, c)
	if len(p.clusters[0].Members) != 3 {
		t.Fatalf("c should be absorbed once it matches the anchor")
	}
}

func TestMalformedArticlesAreSkipped(t *testing.T) {
	a := art("a", "blick", today)
	b := art("b", "20min", today)
	broken := art("x", "tagi", today)
	broken.Abstract = "   "

	m := &tableMatcher{ratios: map[string]float64{key("a", "b"): 0.9, key("a", "x"): 1, key("b", "x"): 1}}
	recent, window := Partition(today, 14, []domain.Article{broken, a, b})
	clusters := NewEngine(NewFuzzyStrategy(m), 14).Run(recent, window)

	if len(clusters) != 1 {
		t.Fatalf("want 1 cluster, got %d", len(clusters))
	}
	for _, mem := range clusters[0].Members {
		if mem.ArticleID == "x" {
			t.Error("malformed article was clustered")
		}
	}
}

func TestPartition(t *testing.T) {
	arts := []domain.Article{
		art("today", "a", today),
		art("week", "a", today.AddDate(0, 0, -7)),
		art("edge", "a", domain.StartOfDay(today).AddDate(0, 0, -14)),
		art("old", "a", today.AddDate(0, 0, -20)),
	}
	recent, window := Partition(today, 14, arts)
	if len(recent) != 1 || recent[0].ID != "today" {
		t.Errorf("recent = %v", ids(recent))
	}
	if strings.Join(ids(window), ",") != "today,week,edge" {
		t.Errorf("window = %v", ids(window))
	}
}

func TestTagStrategyBestMatchWins(t *testing.T) {
	anchor1 := art("anchor1", "blick", today, "bern", "wahlen", "svp")
	anchor2 := art("anchor2", "20min", today, "bern", "wahlen", "sp", "fdp")
	sub := art("sub", "tagi", today.AddDate(0, 0, -1), "bern", "wahlen", "sp", "fdp", "svp")
	other := art("other", "zeit", today.AddDate(0, 0, -2), "bern", "wahlen", "svp")
	noise := art("noise", "zeit", today.AddDate(0, 0, -2), "zoo", "basel")

	recent, window := Partition(today, 14, []domain.Article{anchor1, anchor2, sub, other, noise})
	clusters := NewEngine(NewTagStrategy(0.5), 14).Run(recent, window)

	byAnchor := map[string]string{}
	for _, c := range clusters {
		byAnchor[c.Anchor().ArticleID] = strings.Join(c.ArticleIDs(), ",")
		if c.Strategy != "tags" {
			t.Errorf("strategy = %q", c.Strategy)
		}
	}

	// sub scores 0.6 with anchor1 (seen first) and 0.8 with anchor2
	if got := byAnchor["anchor1"]; got != "anchor1,other" {
		t.Errorf("anchor1 cluster = %q", got)
	}
	if got := byAnchor["anchor2"]; got != "anchor2,sub" {
		t.Errorf("anchor2 cluster = %q", got)
	}
	if len(clusters) != 2 {
		t.Errorf("want 2 clusters, got %v", byAnchor)
	}
}

func TestTagStrategyPlacesArticleOnce(t *testing.T) {
	a := art("a", "blick", today, "bern", "wahlen")
	b := art("b", "20min", today, "bern", "wahlen")
	clusters := NewEngine(NewTagStrategy(0.5), 14).Run([]domain.Article{a, b}, []domain.Article{a, b})
	if len(clusters) != 1 {
		t.Fatalf("mutual best matches should yield one cluster, got %d", len(clusters))
	}
	if strings.Join(clusters[0].ArticleIDs(), ",") != "a,b" {
		t.Errorf("members = %v", clusters[0].ArticleIDs())
	}
}

func TestTagStrategySkipsUntagged(t *testing.T) {
	a := art("a", "blick", today, "x")
	b := art("b", "20min", today)
	clusters := NewEngine(NewTagStrategy(0.1), 14).Run([]domain.Article{a, b}, []domain.Article{a, b})
	if len(clusters) != 0 {
		t.Errorf("untagged article must not form a cluster: %+v", clusters)
	}
}

func TestAbstractMatcherStopWords(t *testing.T) {
	a := art("a", "blick", today)
	a.Abstract = "Zug in Bern"
	b := art("b", "20min", today)
	b.Abstract = "Zug nach Bern"

	plain, _ := NewAbstractMatcher(0.6).Match(a, b)
	if plain.Ratio >= 1 {
		t.Errorf("stop words should count without a list: %+v", plain)
	}
	stripped, ok := NewAbstractMatcher(0.6, textnorm.DefaultStopWords...).Match(a, b)
	if !ok || stripped.Ratio != 1 {
		t.Errorf("abstracts equal after stop word removal scored %+v", stripped)
	}
}

func ids(arts []domain.Article) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.ID
	}
	return out
}
