package httpapi

import "testing"

func TestParsePagination(t *testing.T) {
	if page, perPage, err := parsePagination("", ""); err != nil || page != 1 || perPage != defaultPerPage {
		t.Fatalf("defaults: got (%d, %d, %v)", page, perPage, err)
	}
	if _, _, err := parsePagination("0", ""); err == nil {
		t.Fatal("expected error for page=0")
	}
	if _, _, err := parsePagination("", "abc"); err == nil {
		t.Fatal("expected error for non-numeric per_page")
	}
	if _, perPage, err := parsePagination("2", "500"); err != nil || perPage != maxPerPage {
		t.Fatalf("per_page clamp: got (%d, %v)", perPage, err)
	}
}

func TestCalcTotalPages(t *testing.T) {
	cases := []struct {
		total, perPage, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, c := range cases {
		if got := calcTotalPages(c.total, c.perPage); got != c.want {
			t.Fatalf("calcTotalPages(%d, %d) = %d, want %d", c.total, c.perPage, got, c.want)
		}
	}
}
