package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/transform"
)

const (
	maxReviewerKey      = 21
	maxReviewProductKey = 10
)

// ReviewRow is one validated s1_review row. Helpfulness is nil when the
// source vote pair had a zero denominator; the column is nullable for
// exactly that case.
type ReviewRow struct {
	ReviewerKey  string
	ProductKey   string
	ReviewerName string
	Helpfulness  *float64
	Text         string
	Score        float64
	Title        string
	ReviewedAt   time.Time
}

func (r ReviewRow) values() []any {
	var helpful any
	if r.Helpfulness != nil {
		helpful = *r.Helpfulness
	}
	return []any{
		r.ReviewerKey, r.ProductKey, r.ReviewerName, helpful,
		r.Text, r.Score, r.Title, r.ReviewedAt,
	}
}

var reviewColumns = []string{
	"r_reviewer_source_key", "r_product_key", "r_reviewer_name",
	"r_helpfulness_rating", "r_review_text", "r_review_score",
	"r_review_title", "r_review_datetime",
}

// BuildReview transforms one raw CSV row into a staging review row.
func BuildReview(row map[string]string) (ReviewRow, error) {
	r := ReviewRow{
		ReviewerKey:  row["reviewerID"],
		ProductKey:   row["asin"],
		ReviewerName: transform.StringOr(row["reviewerName"], transform.Unknown("username")),
		Text:         transform.StringOr(row["reviewText"], transform.Unknown("review text")),
		Title:        transform.StringOr(row["summary"], transform.Unknown("review title")),
	}

	if err := transform.CheckLen("reviewer_source_key", r.ReviewerKey, maxReviewerKey); err != nil {
		return ReviewRow{}, err
	}
	if err := transform.CheckLen("product_source_key", r.ProductKey, maxReviewProductKey); err != nil {
		return ReviewRow{}, err
	}

	score, err := strconv.ParseFloat(row["overall"], 64)
	if err != nil {
		return ReviewRow{}, fmt.Errorf("invalid review score %q", row["overall"])
	}
	r.Score = score

	helpful, err := helpfulness(row["helpful"])
	if err != nil {
		return ReviewRow{}, err
	}
	r.Helpfulness = helpful

	secs, err := strconv.ParseInt(row["unixReviewTime"], 10, 64)
	if err != nil {
		return ReviewRow{}, fmt.Errorf("invalid review time %q", row["unixReviewTime"])
	}
	r.ReviewedAt = time.Unix(secs, 0).UTC()

	return r, nil
}

// helpfulness parses the vote pair [up, total]; elements past the first two
// are ignored. A zero total means no votes, not a zero ratio, so it maps to
// nil.
func helpfulness(cell string) (*float64, error) {
	list, ok := transform.Decode(cell).([]any)
	if !ok || len(list) < 2 {
		return nil, fmt.Errorf("invalid helpful rating %q", cell)
	}
	up, ok1 := asFloat(list[0])
	total, ok2 := asFloat(list[1])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("invalid helpful rating %q", cell)
	}
	ratio, ok := transform.Ratio(up, total)
	if !ok {
		return nil, nil
	}
	return &ratio, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
