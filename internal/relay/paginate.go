package relay

import "unicode/utf8"

// Paginate splits text into fixed windows of at most maxPageSize runes.
//
// Concatenating the returned pages' Content yields text. Empty text yields a
// single placeholder page. maxPageSize <= 0 falls back to DefaultMaxPageSize
// and an empty placeholder to DefaultPlaceholder.
func Paginate(text string, maxPageSize int, placeholder string) []Page {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	if text == "" {
		if placeholder == "" {
			placeholder = DefaultPlaceholder
		}
		return []Page{{Index: 0, Content: placeholder, Kind: PagePlaceholder}}
	}

	pages := make([]Page, 0, PageCount(text, maxPageSize))
	start, runes := 0, 0
	for i := range text {
		if runes == maxPageSize {
			pages = append(pages, Page{Index: len(pages), Content: text[start:i], Kind: PageText})
			start, runes = i, 0
		}
		runes++
	}
	pages = append(pages, Page{Index: len(pages), Content: text[start:], Kind: PageText})
	return pages
}

// PageCount returns len(Paginate(text, maxPageSize, "")) without building the pages.
func PageCount(text string, maxPageSize int) int {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 1
	}
	return (n + maxPageSize - 1) / maxPageSize
}
