package triplet

import (
	"context"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/threadgraph/pkg/common"
)

func TestParseDecoded(t *testing.T) {
	tests := []struct {
		name    string
		decoded string
		want    []common.Triple
	}{
		{
			name:    "single triple",
			decoded: "<s><triplet> Earth <subj> Sun <obj> orbits</s>",
			want:    []common.Triple{{Head: "Earth", Relation: "orbits", Tail: "Sun"}},
		},
		{
			name:    "multi word fields and padding",
			decoded: "<s><triplet> Angela Merkel <subj> Christian Democratic Union <obj> member of political party</s><pad><pad>",
			want: []common.Triple{{
				Head:     "Angela Merkel",
				Relation: "member of political party",
				Tail:     "Christian Democratic Union",
			}},
		},
		{
			name:    "two triplets",
			decoded: "<triplet> Paris <subj> France <obj> country <triplet> Berlin <subj> Germany <obj> country",
			want: []common.Triple{
				{Head: "Paris", Relation: "country", Tail: "France"},
				{Head: "Berlin", Relation: "country", Tail: "Germany"},
			},
		},
		{
			name:    "subject boundary emits and drops head",
			decoded: "<triplet> Paris <subj> France <obj> country <subj> Europe <obj> continent",
			want: []common.Triple{
				{Head: "Paris", Relation: "country", Tail: "France"},
			},
		},
		{
			name:    "incomplete trailing triple",
			decoded: "<triplet> Paris <subj> France",
			want:    nil,
		},
		{
			name:    "tokens before any marker are ignored",
			decoded: "noise <triplet> A <subj> B <obj> r",
			want:    []common.Triple{{Head: "A", Relation: "r", Tail: "B"}},
		},
		{
			name:    "empty",
			decoded: "<s></s>",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDecoded(tt.decoded)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("<s><triplet>  a\tb\n<subj> c</s><pad>")
	want := []string{"<triplet>", "a", "b", "<subj>", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

type fakeGenerator struct {
	sequences []string
	gotN      int
}

func (f *fakeGenerator) GenerateSequences(_ context.Context, _ string, n int) ([]string, error) {
	f.gotN = n
	return f.sequences, nil
}

func TestExtractor_CollectsAllSequences(t *testing.T) {
	gen := &fakeGenerator{sequences: []string{
		"<triplet> A <subj> B <obj> r",
		"<triplet> A <subj> C <obj> s",
		"nothing useful",
	}}
	e := &Extractor{Model: gen, Sequences: 3}

	got, err := e.Extract(context.Background(), "A met B and C")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.gotN != 3 {
		t.Fatalf("expected 3 sequences requested, got %d", gen.gotN)
	}
	if len(got) != 2 || got[1].Tail != "C" {
		t.Fatalf("unexpected triples: %+v", got)
	}
}
