package main

import (
	"slices"
	"strings"
)

// stringSlice 收集可重复的 flag 值，例如 -c key=value。
type stringSlice []string

func (s *stringSlice) String() string     { return strings.Join(*s, ",") }
func (s *stringSlice) Set(v string) error { *s = append(*s, v); return nil }

// csvSlice 接受逗号分隔的列表，可重复出现；空项与重复项被忽略。
type csvSlice []string

func (s *csvSlice) String() string { return strings.Join(*s, ",") }

func (s *csvSlice) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" || slices.Contains(*s, item) {
			continue
		}
		*s = append(*s, item)
	}
	return nil
}
