package triage

import "testing"

func TestHashingEmbedderDeterministicAndNormalized(t *testing.T) {
	emb := NewHashingEmbedder()
	vecs, err := emb.EmbedTexts([]string{"the quick brown fox", "the quick brown fox"})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			t.Fatalf("embedder is not deterministic: mismatch at index %d", i)
		}
	}

	var normSq float64
	for _, v := range vecs[0] {
		normSq += v * v
	}
	if normSq < 0.999 || normSq > 1.001 {
		t.Fatalf("vector not L2-normalized: norm^2=%f", normSq)
	}
}

func TestHashingEmbedderDistinguishesUnrelatedText(t *testing.T) {
	emb := NewHashingEmbedder()
	vecs, err := emb.EmbedTexts([]string{
		"the agent could not find the readme for setup instructions",
		"provider returned a 429 resource_exhausted error during generation",
	})
	if err != nil {
		t.Fatalf("EmbedTexts: %v", err)
	}
	cos := Dot(vecs[0], vecs[1])
	if cos > 0.5 {
		t.Fatalf("expected dissimilar texts to have low cosine, got %f", cos)
	}
}

func TestComputePairSimilarityExactFingerprintShortcut(t *testing.T) {
	a := ItemVector{Fingerprint: "abc", Vector: Vector{1, 0}}
	b := ItemVector{Fingerprint: "abc", Vector: Vector{0, 1}}
	sim := ComputePairSimilarity(a, b)
	if !sim.ExactDuplicate || sim.OverallSimilarity != 1.0 {
		t.Fatalf("expected exact-duplicate shortcut to force overall=1.0, got %+v", sim)
	}
}

func TestComputePairSimilarityWeightedComposite(t *testing.T) {
	a := ItemVector{
		Vector:      Vector{1, 0},
		TitleTokens: map[string]bool{"agent": true, "failed": true},
		Anchors:     map[string]bool{"src/main.go": true},
		EvidenceIDs: map[string]bool{"run-1": true},
	}
	b := ItemVector{
		Vector:      Vector{1, 0},
		TitleTokens: map[string]bool{"agent": true, "failed": true},
		Anchors:     map[string]bool{"src/main.go": true},
		EvidenceIDs: map[string]bool{"run-1": true},
	}
	sim := ComputePairSimilarity(a, b)
	if sim.OverallSimilarity < 0.99 {
		t.Fatalf("identical items should score near 1.0, got %f", sim.OverallSimilarity)
	}

	c := ItemVector{Vector: Vector{-1, 0}}
	d := ItemVector{Vector: Vector{1, 0}}
	simDissimilar := ComputePairSimilarity(c, d)
	if simDissimilar.OverallSimilarity > 0.2 {
		t.Fatalf("opposite embeddings with no other signal should score near 0, got %f", simDissimilar.OverallSimilarity)
	}
}

func TestGenerateCandidatePairsAllPairsWhenSmall(t *testing.T) {
	items := make([]ItemVector, 5)
	for i := range items {
		items[i] = ItemVector{Vector: Vector{1, 0}}
	}
	pairs := GenerateCandidatePairs(items, DefaultCandidatePairOptions())
	want := 5 * 4 / 2
	if len(pairs) != want {
		t.Fatalf("got %d candidate pairs, want %d", len(pairs), want)
	}
}

func TestGenerateCandidatePairsBucketsLargeSets(t *testing.T) {
	n := 100
	items := make([]ItemVector, n)
	for i := range items {
		fp := "shared"
		if i%2 == 0 {
			fp = "other"
		}
		items[i] = ItemVector{
			Fingerprint: fp,
			Vector:      Vector{1, 0, 0, 0},
		}
	}
	pairs := GenerateCandidatePairs(items, DefaultCandidatePairOptions())
	if len(pairs) == 0 {
		t.Fatalf("expected fingerprint-sharing items to produce candidate pairs")
	}
	for key := range pairs {
		if key.I >= n || key.J >= n {
			t.Fatalf("pair index out of range: %+v", key)
		}
	}
}

func TestClusterItemsKNNGroupsSimilarItems(t *testing.T) {
	items := []ItemVector{
		{Fingerprint: "a", Vector: Vector{1, 0}},
		{Fingerprint: "a", Vector: Vector{1, 0}},
		{Fingerprint: "b", Vector: Vector{0, 1}},
	}
	clusters := ClusterItemsKNN(items, ClusterOptions{
		OverallThreshold:  0.9,
		IncludeSingletons: true,
		CandidatePairs:    DefaultCandidatePairOptions(),
	})

	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2 (a duplicate pair + a singleton), clusters=%+v", len(clusters), clusters)
	}

	var sawPair, sawSingleton bool
	for _, c := range clusters {
		switch c.Size() {
		case 2:
			sawPair = true
		case 1:
			sawSingleton = true
		}
	}
	if !sawPair || !sawSingleton {
		t.Fatalf("expected one 2-member cluster and one singleton, got %+v", clusters)
	}
}

func TestClusterItemsKNNExcludesSingletonsUnlessRequested(t *testing.T) {
	items := []ItemVector{
		{Vector: Vector{1, 0}},
		{Vector: Vector{0, 1}},
	}
	clusters := ClusterItemsKNN(items, ClusterOptions{
		OverallThreshold:  0.99,
		IncludeSingletons: false,
		CandidatePairs:    DefaultCandidatePairOptions(),
	})
	if len(clusters) != 0 {
		t.Fatalf("expected no clusters when singletons are excluded and nothing merges, got %+v", clusters)
	}
}

func TestClusterItemsKNNMedoidRepresentative(t *testing.T) {
	// Item 0 is an outlier; items 1 and 2 are near-identical to each other
	// and to the centroid, so the medoid should be 1 or 2, never 0.
	items := []ItemVector{
		{Vector: Vector{0.6, 0.8}},
		{Vector: Vector{1, 0}},
		{Vector: Vector{0.99, 0.14}},
	}
	clusters := ClusterItemsKNN(items, ClusterOptions{
		OverallThreshold:  0.5,
		IncludeSingletons: true,
		CandidatePairs:    DefaultCandidatePairOptions(),
	})
	if len(clusters) != 1 {
		t.Fatalf("expected all 3 items to merge into one cluster, got %+v", clusters)
	}
	if clusters[0].Representative == 0 {
		t.Fatalf("expected medoid to be item 1 or 2, got the outlier 0")
	}
}

func TestClassifyThemeFirstMatch(t *testing.T) {
	id, _ := ClassifyTheme("agent hit a 429 resource_exhausted error, quota exceeded")
	if id != "provider_capacity" {
		t.Fatalf("got theme %q, want provider_capacity", id)
	}

	id, _ = ClassifyTheme("nothing in this sentence matches any rule")
	if id != themeOther {
		t.Fatalf("got theme %q, want other", id)
	}
}

func TestClassifyThemesMultiMatch(t *testing.T) {
	themes := ClassifyThemes("commands are blocked by permission_policy and the README has no usage examples")
	if len(themes) < 2 {
		t.Fatalf("expected at least 2 theme matches, got %+v", themes)
	}
}

func TestExtractPathAnchorsFromChunks(t *testing.T) {
	anchors := ExtractPathAnchorsFromChunks([]string{"see src/pkg/main.go for the entrypoint"})
	found := make(map[string]bool)
	for _, a := range anchors {
		found[a] = true
	}
	if !found["src/pkg/main.go"] {
		t.Fatalf("expected full path anchor, got %v", anchors)
	}
	if !found["main.go"] {
		t.Fatalf("expected basename anchor, got %v", anchors)
	}
	if !found["pkg/main.go"] {
		t.Fatalf("expected last-two-components anchor, got %v", anchors)
	}
}
