package nodelink

import (
	"strings"
	"testing"

	"github.com/matzehuels/distbuilder/pkg/dag"
)

func sampleGraph() *dag.DAG {
	g := dag.New(nil)
	_ = g.AddNode(dag.Node{ID: "libtiff.libtiff", Meta: dag.Metadata{
		MetaVersion: "4.5.1",
		MetaHash:    "0123456789abcdef0123",
		MetaOptions: map[string]string{"zlib": "1", "jpeg": "0"},
	}})
	_ = g.AddNode(dag.Node{ID: "madler.zlib", Meta: dag.Metadata{MetaVersion: "1.3"}})
	_ = g.AddEdge(dag.Edge{From: "libtiff.libtiff", To: "madler.zlib"})
	return g
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sampleGraph(), Options{})

	for _, want := range []string{
		"digraph G {",
		`"libtiff.libtiff" [label="libtiff.libtiff", penwidth=2];`,
		`"madler.zlib" [label="madler.zlib"];`,
		`"libtiff.libtiff" -> "madler.zlib";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot := ToDOT(sampleGraph(), Options{Detailed: true})

	for _, want := range []string{
		`version: 4.5.1`,
		`hash: 0123456789ab`,
		`jpeg=0\nzlib=1`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 100.50 200.00"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 100.50 200.00"`) || !strings.Contains(out, `width="100"`) {
		t.Errorf("normalizeViewBox() = %s", out)
	}

	plain := []byte(`<svg><g/></svg>`)
	if string(normalizeViewBox(plain)) != string(plain) {
		t.Error("svg without viewBox should be unchanged")
	}
}
