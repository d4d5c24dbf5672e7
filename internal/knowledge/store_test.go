package knowledge

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
)

// fakeEmbedder maps known strings to fixed vectors so similarity is
// fully controlled by the test.
type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return nil, errors.New("unknown text")
}

func newTestStore(t *testing.T, e Embedder) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "corpus.db"), e)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestListReferencePages(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})
	ctx := context.Background()

	if err := s.AddDocPage(ctx, "https://docs/install", "Installation"); err != nil {
		t.Fatalf("AddDocPage() error = %v", err)
	}
	if err := s.AddDocPage(ctx, "https://docs/agents", "Agents Guide"); err != nil {
		t.Fatalf("AddDocPage() error = %v", err)
	}

	titles, err := s.ListReferencePages(ctx)
	if err != nil {
		t.Fatalf("ListReferencePages() error = %v", err)
	}
	want := []string{"Agents Guide", "Installation"}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("ListReferencePages() = %v, want %v", titles, want)
	}
}

func TestListReferencePages_EmptyCorpus(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})

	titles, err := s.ListReferencePages(context.Background())
	if err != nil {
		t.Fatalf("ListReferencePages() error = %v", err)
	}
	if len(titles) != 0 {
		t.Errorf("ListReferencePages() = %v, want empty", titles)
	}
}

func TestFindSimilar_ReturnsBestMatch(t *testing.T) {
	e := &fakeEmbedder{vectors: map[string][]float64{
		"spotify playlist management": {1, 0, 0},
		"music and playlists":         {0.9, 0.1, 0},
		"stock market data":           {0, 1, 0},
		"manage my spotify playlists": {0.95, 0.05, 0},
	}}
	s := newTestStore(t, e)
	ctx := context.Background()

	for _, m := range []TemplateMatch{
		{Name: "spotify_agent", Purpose: "spotify playlist management", ToolsCode: "class SpotifyMCPTool: pass"},
		{Name: "music_agent", Purpose: "music and playlists", ToolsCode: "class MusicTool: pass"},
		{Name: "finance_agent", Purpose: "stock market data", ToolsCode: "class StockTool: pass"},
	} {
		if err := s.AddTemplate(ctx, m); err != nil {
			t.Fatalf("AddTemplate(%s) error = %v", m.Name, err)
		}
	}

	match, err := s.FindSimilar(ctx, "manage my spotify playlists")
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if match == nil {
		t.Fatal("FindSimilar() = nil, want a match")
	}
	if match.Name != "spotify_agent" {
		t.Errorf("match.Name = %q, want spotify_agent", match.Name)
	}
	if match.Score < similarityThreshold {
		t.Errorf("match.Score = %v, want >= %v", match.Score, similarityThreshold)
	}
}

func TestFindSimilar_NoMatchBelowThreshold(t *testing.T) {
	e := &fakeEmbedder{vectors: map[string][]float64{
		"stock market data": {0, 1, 0},
		"cook dinner":       {1, 0, 0},
	}}
	s := newTestStore(t, e)
	ctx := context.Background()

	if err := s.AddTemplate(ctx, TemplateMatch{Name: "finance_agent", Purpose: "stock market data", ToolsCode: "x"}); err != nil {
		t.Fatalf("AddTemplate() error = %v", err)
	}

	match, err := s.FindSimilar(ctx, "cook dinner")
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if match != nil {
		t.Errorf("FindSimilar() = %+v, want nil for orthogonal purpose", match)
	}
}

func TestFindSimilar_EmptyCorpus(t *testing.T) {
	e := &fakeEmbedder{vectors: map[string][]float64{"anything": {1, 0}}}
	s := newTestStore(t, e)

	match, err := s.FindSimilar(context.Background(), "anything")
	if err != nil {
		t.Fatalf("FindSimilar() error = %v", err)
	}
	if match != nil {
		t.Errorf("FindSimilar() = %+v, want nil on empty corpus", match)
	}
}

func TestFindSimilar_EmbedFailure(t *testing.T) {
	s := newTestStore(t, &fakeEmbedder{})

	if _, err := s.FindSimilar(context.Background(), "unembeddable"); err == nil {
		t.Fatal("FindSimilar() error = nil, want embed failure")
	}
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	vecs := [][]float64{
		{1.5, -2.25, 0, math.Pi},
		{0.0001},
	}
	for _, vec := range vecs {
		got, err := decodeVector(encodeVector(vec))
		if err != nil {
			t.Fatalf("decodeVector() error = %v", err)
		}
		if !reflect.DeepEqual(got, vec) {
			t.Errorf("round trip = %v, want %v", got, vec)
		}
	}
}

func TestDecodeVector_Malformed(t *testing.T) {
	for _, blob := range [][]byte{nil, {}, {1, 2, 3}} {
		if _, err := decodeVector(blob); err == nil {
			t.Errorf("decodeVector(%v) error = nil, want errBadVector", blob)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2}, []float64{1, 2}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}
