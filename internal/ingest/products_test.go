package ingest

import (
	"strings"
	"testing"
)

func TestBuildProductFullRow(t *testing.T) {
	out := BuildProduct(map[string]string{
		"metadataid":  "1",
		"asin":        "B000001",
		"salesrank":   "{'Toys & Games': 3}",
		"imurl":       "http://img.example/1.jpg",
		"title":       "Wooden  Train",
		"description": "A toy\ntrain",
		"price":       "9.99",
		"brand":       "Acme",
		"categories":  "[['Toys', ['Games']], 'Wood']",
		"related":     "{'also_bought': ['B000002', 'B000003'], 'buy_after_viewing': ['B000004']}",
	})

	if out.ProductErr != nil {
		t.Fatalf("unexpected product error: %v", out.ProductErr)
	}
	p := out.Product
	if p == nil {
		t.Fatal("expected a product row")
	}
	if p.SalesRankCategory != "Toys & Games" || p.SalesRank != 3 {
		t.Errorf("sales rank = %q/%d", p.SalesRankCategory, p.SalesRank)
	}
	if p.Title != "Wooden Train" {
		t.Errorf("title = %q, want whitespace collapsed", p.Title)
	}
	if p.Price != 9.99 {
		t.Errorf("price = %v", p.Price)
	}

	var cats []string
	for _, c := range out.Categories {
		cats = append(cats, c.Category)
	}
	if got, want := strings.Join(cats, ","), "Toys,Games,Wood"; got != want {
		t.Errorf("categories = %q, want %q", got, want)
	}

	if len(out.Related) != 3 {
		t.Fatalf("related rows = %d, want 3", len(out.Related))
	}
	first := out.Related[0]
	if first.SourceKey != "B000001" || first.RelatedSourceKey != "B000002" || first.Relation != "also_bought" {
		t.Errorf("related[0] = %+v", first)
	}
}

func TestBuildProductSentinels(t *testing.T) {
	out := BuildProduct(map[string]string{
		"metadataid": "2",
		"asin":       "B000002",
		"categories": "[['Books']]",
	})
	if out.ProductErr != nil {
		t.Fatalf("unexpected error: %v", out.ProductErr)
	}
	p := out.Product
	if p.SalesRankCategory != "*Unknown category" || p.SalesRank != -1 {
		t.Errorf("sales rank sentinel = %q/%d", p.SalesRankCategory, p.SalesRank)
	}
	if p.ImageURL != "*Unknown URL" {
		t.Errorf("image url = %q", p.ImageURL)
	}
	if p.Brand != "*Unknown brand" {
		t.Errorf("brand = %q", p.Brand)
	}
	if p.Price != -1.00 {
		t.Errorf("price = %v, want -1", p.Price)
	}
	if len(out.Related) != 0 || len(out.RelatedErrs) != 0 {
		t.Errorf("empty related cell should yield nothing, got %d rows %d errs",
			len(out.Related), len(out.RelatedErrs))
	}
}

func TestBuildProductRejections(t *testing.T) {
	tests := []struct {
		name    string
		row     map[string]string
		wantErr string
	}{
		{
			name:    "bad price",
			row:     map[string]string{"asin": "B1", "price": "abc", "categories": "[]"},
			wantErr: "invalid price",
		},
		{
			name:    "oversized source key",
			row:     map[string]string{"asin": "B0000000001", "categories": "[]"},
			wantErr: "product_source_key too long",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := BuildProduct(tt.row)
			if out.Product != nil {
				t.Fatal("rejected row must not produce a product")
			}
			if out.ProductErr == nil || !strings.Contains(out.ProductErr.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", out.ProductErr, tt.wantErr)
			}
		})
	}
}

func TestBuildProductCategoryValidatedIndependently(t *testing.T) {
	long := strings.Repeat("x", maxCategory+1)
	out := BuildProduct(map[string]string{
		"asin":       "B1",
		"categories": "[['Books', '" + long + "', 'Fiction']]",
	})
	if len(out.Categories) != 2 {
		t.Fatalf("kept categories = %d, want 2", len(out.Categories))
	}
	if len(out.CategoryErrs) != 1 {
		t.Fatalf("category errors = %d, want 1", len(out.CategoryErrs))
	}
	if out.Product == nil {
		t.Error("category rejection must not discard the product row")
	}
}

func TestBuildProductBadCategoriesCell(t *testing.T) {
	out := BuildProduct(map[string]string{"asin": "B1", "categories": "not a list"})
	if len(out.CategoryErrs) != 1 {
		t.Fatalf("category errors = %d, want 1", len(out.CategoryErrs))
	}
	if out.Product == nil {
		t.Error("product row should survive a malformed categories cell")
	}
}

func TestBuildProductRelatedTripleValidation(t *testing.T) {
	out := BuildProduct(map[string]string{
		"asin":       "B1",
		"categories": "[]",
		"related":    "{'also_bought': ['B2', 'B000000000000TOOLONG']}",
	})
	if len(out.Related) != 1 {
		t.Fatalf("related rows = %d, want 1", len(out.Related))
	}
	if len(out.RelatedErrs) != 1 {
		t.Fatalf("related errors = %d, want 1", len(out.RelatedErrs))
	}
}
