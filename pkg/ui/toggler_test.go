package ui

import (
	"testing"

	"github.com/vanderheijden86/sgv/pkg/model"
)

func testDataset() *model.Dataset {
	return model.NewDataset([]model.Record{
		{SubgraphID: "sg1", Iteration: "T0", CellType: "DA_like_neurons", Cluster: "11", TermName: "axon guidance", TermID: "GO:0007411", PValue: "0.0004", Intersection: "TP53, BRCA1, EGFR, MYC, KRAS, PTEN", SubgraphSize: "6", IC: "4.2"},
		{SubgraphID: "sg2", Iteration: "T1", CellType: "Tcell", Cluster: "3", TermName: "axon guidance", TermID: "GO:0007411", PValue: "0.02", Intersection: "MYC, CD4, TP53", SubgraphSize: "3", IC: "inf"},
		{SubgraphID: "sg1", Iteration: "T0", CellType: "DA_like_neurons", Cluster: "11", TermName: "synapse", TermID: "GO:0045202", PValue: "0.00001", Intersection: "SNCA", SubgraphSize: "6", IC: "2"},
	})
}

func TestTogglerExpandCollapse(t *testing.T) {
	tg := NewToggler(testDataset(), 0)

	if !tg.Toggle("row-a", "sg1") {
		t.Fatal("first toggle should expand")
	}
	v := tg.Active()
	if v == nil || v.RowKey != "row-a" || v.SubgraphID != "sg1" {
		t.Fatalf("active = %+v", v)
	}
	if len(v.Rows) != 2 || v.Rows[0][5] != "axon guidance" || v.Rows[1][5] != "synapse" {
		t.Errorf("detail rows not in dataset order: %q", v.Rows)
	}
	if v.Rows[0][1] != "DA like neurons" {
		t.Errorf("cell type = %q", v.Rows[0][1])
	}
	if v.Rows[0][7] != "BRCA1, EGFR, KRAS, MYC, PTEN, ..." {
		t.Errorf("intersection = %q", v.Rows[0][7])
	}

	if tg.Toggle("row-a", "sg1") {
		t.Fatal("second toggle should collapse")
	}
	if tg.Active() != nil || tg.Expanded("row-a") {
		t.Error("nothing should be expanded")
	}
}

func TestTogglerSingleExpansion(t *testing.T) {
	tg := NewToggler(testDataset(), 0)
	tg.Toggle("row-a", "sg1")
	tg.Toggle("row-b", "sg2")

	if tg.Expanded("row-a") {
		t.Error("previous row should have collapsed")
	}
	if !tg.Expanded("row-b") {
		t.Error("new row should be expanded")
	}
	if v := tg.Active(); v.SubgraphID != "sg2" || len(v.Rows) != 1 {
		t.Errorf("active = %+v", v)
	}
}

func TestTogglerPlaceholder(t *testing.T) {
	tg := NewToggler(testDataset(), 0)
	tg.Toggle("row-z", "missing")
	v := tg.Active()
	if v == nil || !v.Empty() {
		t.Fatalf("expected placeholder view, got %+v", v)
	}
	if tg.GeneList() != "" {
		t.Error("placeholder has no genes")
	}
}

func TestTogglerNilDataset(t *testing.T) {
	tg := NewToggler(nil, 0)
	tg.Toggle("r", "sg1")
	if v := tg.Active(); v == nil || !v.Empty() {
		t.Errorf("nil dataset should act empty, got %+v", v)
	}
}

func TestTogglerSetDatasetCollapses(t *testing.T) {
	tg := NewToggler(testDataset(), 0)
	tg.Toggle("r", "sg1")
	tg.SetDataset(model.NewDataset(nil))
	if tg.Active() != nil {
		t.Error("swapping the dataset should collapse")
	}
}

func TestTogglerGeneList(t *testing.T) {
	tg := NewToggler(testDataset(), 3)
	tg.Toggle("r", "sg1")
	if got, want := tg.GeneList(), "BRCA1, EGFR, KRAS, MYC, PTEN, SNCA, TP53"; got != want {
		t.Errorf("GeneList = %q, want %q", got, want)
	}
	if got := tg.Active().Rows[0][7]; got != "BRCA1, EGFR, KRAS, ..." {
		t.Errorf("custom gene limit not applied: %q", got)
	}
}
