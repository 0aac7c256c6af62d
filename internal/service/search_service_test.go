package service

import (
	"context"
	"testing"

	"carepulse-go/internal/config"
	"carepulse-go/internal/model"
)

type stubEmbedder struct {
	vector []float32
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vector) }

type stubSearcher struct {
	matches []model.QueryMatch
}

func (s *stubSearcher) KNNSearchChunks(ctx context.Context, vector []float32, topK int) ([]model.QueryMatch, error) {
	return s.matches, nil
}

func retrievalCfg() config.RetrievalConfig {
	return config.RetrievalConfig{
		TopK:           3,
		QueryPrefixes:  []string{"get me the paragraph"},
		HeadingPattern: `\r?\n\d+(?:\.\d+)*\s+`,
	}
}

func newTestSearchService(matches []model.QueryMatch) SearchService {
	return NewSearchService(&stubEmbedder{vector: []float32{0.1, 0.2}}, &stubSearcher{matches: matches}, retrievalCfg())
}

func TestQueryPrefersLexicalMatchOverTopVectorHit(t *testing.T) {
	matches := []model.QueryMatch{
		{
			ID:    "doc-top",
			Score: 0.99,
			Metadata: model.ChunkMetadata{
				Paragraph: "Visiting hours\nSomething semantically close but wrong.",
				Line:      "Something semantically close but wrong.",
			},
		},
		{
			ID:    "doc-lexical",
			Score: 0.80,
			Metadata: model.ChunkMetadata{
				Paragraph: "Policies\nAll patients must sign the consent form.\nStaff will assist.",
				Line:      "All patients must sign the consent form.",
			},
		},
	}
	svc := newTestSearchService(matches)

	results, err := svc.Query(context.Background(), "all patients must sign the consent form")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	got := results[0].RelevantContent
	if got != "All patients must sign the consent form.\nStaff will assist." {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestQueryRerankRespectsWordBoundaries(t *testing.T) {
	topParagraph := "Hours\nThe clinic closes at dusk."
	matches := []model.QueryMatch{
		{
			ID:    "doc-top",
			Score: 0.99,
			Metadata: model.ChunkMetadata{
				Paragraph: topParagraph,
				Line:      "The clinic closes at dusk.",
			},
		},
		{
			ID:    "doc-boundary",
			Score: 0.50,
			Metadata: model.ChunkMetadata{
				Paragraph: "Seasons\nSunset hours vary by season.",
				Line:      "Sunset hours vary by season.",
			},
		},
	}
	svc := newTestSearchService(matches)

	// "sun set" 不应跨词边界匹配到 "Sunset"; 没有词法命中时保留相似度第一名
	results, err := svc.Query(context.Background(), "sun set")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	want := "The clinic closes at dusk.\n" + topParagraph
	if results[0].RelevantContent != want {
		t.Errorf("expected top vector hit with full-paragraph fallback, got %q", results[0].RelevantContent)
	}
}

func TestQueryExcerptStopsAtNextHeading(t *testing.T) {
	matches := []model.QueryMatch{
		{
			ID:    "doc-1",
			Score: 0.9,
			Metadata: model.ChunkMetadata{
				Paragraph: "1.1 Intro\nHello world\n1.2 Next\nMore text",
				Line:      "Hello world",
			},
		},
	}
	svc := newTestSearchService(matches)

	results, err := svc.Query(context.Background(), "Hello world")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	// 锚点之后紧跟下一个标题, 摘录为空, 只剩命中行本身
	if results[0].RelevantContent != "Hello world" {
		t.Errorf("excerpt should stop before the next heading, got %q", results[0].RelevantContent)
	}
}

func TestQueryFallsBackToFullParagraphWhenAnchorMissing(t *testing.T) {
	paragraph := "Billing\nInvoices are sent monthly.\nContact the front desk."
	matches := []model.QueryMatch{
		{
			ID:    "doc-1",
			Score: 0.7,
			Metadata: model.ChunkMetadata{
				Paragraph: paragraph,
				Line:      "Invoices are sent monthly.",
			},
		},
	}
	svc := newTestSearchService(matches)

	// 语义命中但查询文本在段落中没有任何字面出现
	results, err := svc.Query(context.Background(), "how do payments work")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	want := "Invoices are sent monthly.\n" + paragraph
	if results[0].RelevantContent != want {
		t.Errorf("expected full-paragraph fallback, got %q", results[0].RelevantContent)
	}
}

func TestQueryReturnsEmptyListWithoutCandidates(t *testing.T) {
	svc := newTestSearchService(nil)
	results, err := svc.Query(context.Background(), "anything at all")
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected empty result list, got %d items", len(results))
	}
}

func TestStripQueryPrefix(t *testing.T) {
	prefixes := []string{"get me the paragraph"}
	cases := []struct {
		in   string
		want string
	}{
		{"get me the paragraph about consent", "about consent"},
		{"Get Me The Paragraph about consent", "about consent"},
		{"GET ME THE PARAGRAPH 关于隐私", "关于隐私"},
		{"tell me about consent", "tell me about consent"},
		{"get me the paragraph", "get me the paragraph"},
		{"get me", "get me"},
	}
	for _, c := range cases {
		if got := stripQueryPrefix(c.in, prefixes); got != c.want {
			t.Errorf("stripQueryPrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeForCompare(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello,  World!", "hello world"},
		{"Ｈｅｌｌｏ ｗｏｒｌｄ", "hello world"}, // 全角经 NFKC 归一
		{"  a-b_c 1.2 ", "abc 12"},
		{"sun\tset", "sun set"},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := normalizeForCompare(c.in); got != c.want {
			t.Errorf("normalizeForCompare(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFuzzyAnchorRegexToleratesWhitespaceAndCase(t *testing.T) {
	re, err := fuzzyAnchorRegex("sign the (consent) form")
	if err != nil {
		t.Fatalf("fuzzyAnchorRegex error: %v", err)
	}
	if !re.MatchString("Patients SIGN  the\n(consent)\tform here.") {
		t.Error("regex should match across whitespace runs and case differences")
	}
	if re.MatchString("sign the consent form") {
		t.Error("escaped metacharacters must be matched literally")
	}
}
