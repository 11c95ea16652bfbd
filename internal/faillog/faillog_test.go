package faillog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readArray(t *testing.T, path string) []FailedRow {
	t.Helper()
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	var out []FailedRow
	if err := json.Unmarshal(buf, &out); err != nil {
		t.Fatalf("file is not a JSON array: %v\n%s", err, buf)
	}
	return out
}

func TestAppendCreatesAndExtendsArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "review_failed_rows.json")

	first := []FailedRow{
		{Row: map[string]string{"asin": "B001"}, Error: "Invalid review score", TaskID: 7},
	}
	if err := Append(path, first); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if got := readArray(t, path); len(got) != 1 || got[0].Error != "Invalid review score" {
		t.Fatalf("after first append: %+v", got)
	}

	second := []FailedRow{
		{Row: map[string]string{"asin": "B002"}, Error: "product_key too long"},
		{Row: map[string]string{"asin": "B003"}, Error: "brand too long"},
	}
	if err := Append(path, second); err != nil {
		t.Fatalf("second append: %v", err)
	}

	got := readArray(t, path)
	if len(got) != 3 {
		t.Fatalf("rows=%d; want 3", len(got))
	}
	if got[2].Row["asin"] != "B003" {
		t.Errorf("order not preserved: %+v", got)
	}
}

func TestAppendEmptyIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := Append(path, []BatchError(nil)); err != nil {
		t.Fatalf("empty append: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("no-op append created %s", path)
	}
}
