// Package ingest implements stage 0: reading the raw CSV exports, applying
// the value transform layer row by row, and bulk-loading validated rows into
// the stage-1 staging tables. Rejected rows are collected per failure
// category and appended to that category's own JSON log; they are never
// retried automatically.
package ingest

import (
	"fmt"
	"strconv"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/transform"
)

// Column-length limits for the stage-1 product tables.
const (
	maxProductMetadataID = 7
	maxProductSourceKey  = 10
	maxSalesRankCategory = 50
	maxImageURL          = 225
	maxBrand             = 150
	maxCategory          = 150
	maxRelatedSourceKey  = 10
	maxRelation          = 20
)

// ProductRow is one validated s1_product row. Fields are named at the
// transform boundary; positional tuples exist only at the bulk-load call.
type ProductRow struct {
	MetadataID        string
	SourceKey         string
	SalesRankCategory string
	SalesRank         int64
	ImageURL          string
	Title             string
	Description       string
	Price             float64
	Brand             string
}

func (p ProductRow) values() []any {
	return []any{
		p.MetadataID, p.SourceKey, p.SalesRankCategory, p.SalesRank,
		p.ImageURL, p.Title, p.Description, p.Price, p.Brand,
	}
}

var productColumns = []string{
	"p_product_metadata_id", "p_product_source_key", "p_sales_rank_category",
	"p_sales_rank", "p_image_url", "p_title", "p_description", "p_price", "p_brand",
}

// CategoryRow is one validated s1_product_category row.
type CategoryRow struct {
	SourceKey string
	Category  string
}

func (c CategoryRow) values() []any { return []any{c.SourceKey, c.Category} }

var categoryColumns = []string{"pc_product_source_key", "pc_category"}

// RelatedRow is one validated s1_related_product row: a (subject, related,
// relation-type) triple unrolled from the source's relation map.
type RelatedRow struct {
	SourceKey        string
	RelatedSourceKey string
	Relation         string
}

func (r RelatedRow) values() []any {
	return []any{r.SourceKey, r.RelatedSourceKey, r.Relation}
}

var relatedColumns = []string{"rl_product_source_key", "rl_related_product_source_key", "rl_relation"}

// ProductOutput is everything one source row contributes. A product row may
// stand even when its category list later fails validation: partial writes
// across the three tables are accepted for a record, matching the upstream
// contract (each table is reconciled independently downstream).
type ProductOutput struct {
	Product    *ProductRow
	Categories []CategoryRow
	Related    []RelatedRow

	// Rejections, bucketed by the failure category that logs them.
	ProductErr   error
	CategoryErrs []error
	RelatedErrs  []error
}

// BuildProduct transforms one raw CSV row into its staging rows.
func BuildProduct(row map[string]string) ProductOutput {
	var out ProductOutput

	p := ProductRow{
		MetadataID: row["metadataid"],
		SourceKey:  row["asin"],
	}

	p.SalesRankCategory, p.SalesRank = salesRank(row["salesrank"])

	p.ImageURL = row["imurl"]
	if p.ImageURL == "" {
		p.ImageURL = transform.Unknown("URL")
	}
	p.Title = transform.StringOr(row["title"], transform.Unknown("title"))
	p.Description = transform.StringOr(row["description"], transform.Unknown("description"))
	p.Brand = transform.StringOr(row["brand"], transform.Unknown("brand"))

	if s := row["price"]; s == "" {
		p.Price = -1.00
	} else if v, err := strconv.ParseFloat(s, 64); err != nil {
		out.ProductErr = fmt.Errorf("invalid price %q", s)
	} else {
		p.Price = v
	}

	if out.ProductErr == nil {
		for _, check := range []error{
			transform.CheckLen("product_metadata_id", p.MetadataID, maxProductMetadataID),
			transform.CheckLen("product_source_key", p.SourceKey, maxProductSourceKey),
			transform.CheckLen("sales_rank_category", p.SalesRankCategory, maxSalesRankCategory),
			transform.CheckLen("image_url", p.ImageURL, maxImageURL),
			transform.CheckLen("brand", p.Brand, maxBrand),
		} {
			if check != nil {
				out.ProductErr = check
				break
			}
		}
	}
	if out.ProductErr == nil {
		out.Product = &p
	}

	// Categories: nested lists flatten left to right; each label validates
	// independently so one oversized label does not discard its siblings.
	switch cats := transform.Decode(row["categories"]).(type) {
	case []any:
		for _, c := range transform.FlattenStrings(cats) {
			if err := transform.CheckLen("category", c, maxCategory); err != nil {
				out.CategoryErrs = append(out.CategoryErrs, err)
				continue
			}
			out.Categories = append(out.Categories, CategoryRow{SourceKey: p.SourceKey, Category: c})
		}
	default:
		out.CategoryErrs = append(out.CategoryErrs, fmt.Errorf("invalid categories format"))
	}

	// Relation map: one output row per (subject, related, relation) triple,
	// each triple validated on its own.
	if rel, ok := transform.Decode(row["related"]).(transform.Dict); ok {
		for _, pair := range rel {
			list, ok := pair.Value.([]any)
			if !ok {
				continue
			}
			for _, rk := range list {
				related := RelatedRow{
					SourceKey:        p.SourceKey,
					RelatedSourceKey: fmt.Sprint(rk),
					Relation:         pair.Key,
				}
				if len(related.RelatedSourceKey) > maxRelatedSourceKey || len(related.Relation) > maxRelation {
					out.RelatedErrs = append(out.RelatedErrs, fmt.Errorf("related product fields too long"))
					continue
				}
				out.Related = append(out.Related, related)
			}
		}
	}

	return out
}

// salesRank decodes the salesrank cell, a single-entry dict of category to
// rank. Anything else falls back to sentinels.
func salesRank(cell string) (string, int64) {
	d, ok := transform.Decode(cell).(transform.Dict)
	if !ok || len(d) == 0 {
		return transform.Unknown("category"), -1
	}
	first := d[0]
	switch rank := first.Value.(type) {
	case int64:
		return first.Key, rank
	case float64:
		return first.Key, int64(rank)
	default:
		return transform.Unknown("category"), -1
	}
}
