package relay

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestPaginate(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		size  int
		sizes []int
	}{
		{name: "single short page", text: "hello", size: 4096, sizes: []int{5}},
		{name: "exact multiple", text: strings.Repeat("a", 8192), size: 4096, sizes: []int{4096, 4096}},
		{name: "one over", text: strings.Repeat("a", 4097), size: 4096, sizes: []int{4096, 1}},
		{name: "ten thousand", text: strings.Repeat("x", 10000), size: 4096, sizes: []int{4096, 4096, 1808}},
		{name: "multibyte counts runes", text: strings.Repeat("思考", 5), size: 4, sizes: []int{4, 4, 2}},
		{name: "non-positive size uses default", text: strings.Repeat("b", 5000), size: 0, sizes: []int{4096, 904}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pages := Paginate(tc.text, tc.size, "")
			if len(pages) != len(tc.sizes) {
				t.Fatalf("pages = %d, want %d", len(pages), len(tc.sizes))
			}
			var sb strings.Builder
			for i, p := range pages {
				if p.Index != i {
					t.Fatalf("page %d has index %d", i, p.Index)
				}
				if p.Kind != PageText {
					t.Fatalf("page %d kind = %s", i, p.Kind)
				}
				if n := utf8.RuneCountInString(p.Content); n != tc.sizes[i] {
					t.Fatalf("page %d runes = %d, want %d", i, n, tc.sizes[i])
				}
				sb.WriteString(p.Content)
			}
			if sb.String() != tc.text {
				t.Fatalf("concatenated pages differ from input")
			}
			if got := PageCount(tc.text, tc.size); got != len(pages) {
				t.Fatalf("PageCount = %d, want %d", got, len(pages))
			}
		})
	}
}

func TestPaginate_EmptyYieldsPlaceholder(t *testing.T) {
	pages := Paginate("", 4096, "")
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	if pages[0].Kind != PagePlaceholder || pages[0].Content != DefaultPlaceholder {
		t.Fatalf("unexpected placeholder page: %+v", pages[0])
	}

	custom := Paginate("", 4096, "working")
	if custom[0].Content != "working" {
		t.Fatalf("custom placeholder = %q", custom[0].Content)
	}
	if PageCount("", 4096) != 1 {
		t.Fatalf("PageCount(empty) should be 1")
	}
}

func TestPaginate_PageCountNeverShrinksAsTextGrows(t *testing.T) {
	text := ""
	prev := 1
	for i := 0; i < 300; i++ {
		text += strings.Repeat("y", 37)
		n := len(Paginate(text, 100, ""))
		if n < prev {
			t.Fatalf("page count dropped from %d to %d at step %d", prev, n, i)
		}
		prev = n
	}
}
