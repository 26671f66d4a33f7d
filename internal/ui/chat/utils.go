// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// wrapText wraps text to maxWidth, preserving existing line breaks and
// breaking overlong words. Width-aware for double-width characters.
func wrapText(text string, maxWidth int) string {
	if maxWidth < 10 {
		maxWidth = 10
	}

	var out []string
	for _, paragraph := range strings.Split(text, "\n") {
		if runewidth.StringWidth(paragraph) <= maxWidth {
			out = append(out, paragraph)
			continue
		}
		out = append(out, wrapLine(paragraph, maxWidth)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, maxWidth int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var cur strings.Builder
	curWidth := 0

	flush := func() {
		if cur.Len() > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			curWidth = 0
		}
	}

	for _, w := range words {
		ww := runewidth.StringWidth(w)

		// A single word wider than the line gets hard-broken.
		if ww > maxWidth {
			flush()
			for runewidth.StringWidth(w) > maxWidth {
				head := runewidth.Truncate(w, maxWidth, "")
				lines = append(lines, head)
				w = strings.TrimPrefix(w, head)
			}
			if w != "" {
				cur.WriteString(w)
				curWidth = runewidth.StringWidth(w)
			}
			continue
		}

		if curWidth > 0 && curWidth+1+ww > maxWidth {
			flush()
		}
		if curWidth > 0 {
			cur.WriteByte(' ')
			curWidth++
		}
		cur.WriteString(w)
		curWidth += ww
	}
	flush()

	return lines
}
