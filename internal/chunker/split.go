package chunker

import (
	"strings"
	"unicode"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// span maps a rune range of the joined page text back to its segment box.
type span struct {
	start, end int
	box        domain.Rect
}

// Split groups normalised segments by page (in first-seen order) and cuts
// each page into overlapping windows.
//
// Windows start at multiples of (size-overlap) while the start lies inside
// the page, so the final window may be short. A window start snaps back to
// the beginning of the word it falls in (by at most overlap/2 characters) and
// a window end snaps back to the nearest whitespace (by at most overlap/4),
// which keeps at least a quarter of the overlap between neighbours. Fragments
// of one character or less after trimming are dropped.
func (c *Chunker) Split(segs []Segment) []Fragment {
	var (
		order []int
		pages = map[int][]Segment{}
	)
	for _, s := range segs {
		if _, ok := pages[s.Page]; !ok {
			order = append(order, s.Page)
		}
		pages[s.Page] = append(pages[s.Page], s)
	}

	var out []Fragment
	for _, p := range order {
		text, spans := joinPage(pages[p])
		for _, w := range windows(text, c.chunkSize, c.overlap) {
			body := strings.TrimSpace(string(text[w[0]:w[1]]))
			if len([]rune(body)) <= 1 {
				continue
			}
			out = append(out, Fragment{
				Seq:  len(out),
				Text: body,
				Page: p,
				BBox: unionBox(spans, w[0], w[1]),
			})
		}
	}
	return out
}

func joinPage(segs []Segment) ([]rune, []span) {
	var (
		text  []rune
		spans = make([]span, 0, len(segs))
	)
	for i, s := range segs {
		if i > 0 {
			text = append(text, '\n')
		}
		start := len(text)
		text = append(text, []rune(s.Text)...)
		spans = append(spans, span{start: start, end: len(text), box: s.BBox})
	}
	return text, spans
}

// windows returns [start, end) rune offsets.
func windows(text []rune, size, overlap int) [][2]int {
	n := len(text)
	stride := size - overlap
	if stride <= 0 {
		stride = size
	}
	startSnap, endSnap := overlap/2, overlap/4

	var out [][2]int
	for nominal := 0; nominal < n; nominal += stride {
		start := nominal
		if start > 0 {
			start = snapStart(text, start, startSnap)
		}
		end := start + size
		if end >= n {
			end = n
		} else {
			end = snapEnd(text, start, end, endSnap)
		}
		out = append(out, [2]int{start, end})
		if start == 0 && end == n {
			break
		}
	}
	return out
}

// snapStart moves i back to the start of the word containing it.
func snapStart(text []rune, i, limit int) int {
	for j := i; j > 0 && i-j <= limit; j-- {
		if unicode.IsSpace(text[j-1]) {
			return j
		}
	}
	return i
}

// snapEnd moves end back to just after the nearest whitespace.
func snapEnd(text []rune, start, end, limit int) int {
	for j := end; j > start+1 && end-j <= limit; j-- {
		if unicode.IsSpace(text[j-1]) {
			return j
		}
	}
	return end
}

// unionBox covers every segment box intersecting [start, end). Zero boxes
// are ignored; the result is zero when none carry layout.
func unionBox(spans []span, start, end int) domain.Rect {
	var (
		out   domain.Rect
		found bool
	)
	for _, s := range spans {
		if s.end <= start || s.start >= end || s.box.IsZero() {
			continue
		}
		if !found {
			out = s.box
			found = true
			continue
		}
		out.X1 = min(out.X1, s.box.X1)
		out.Y1 = min(out.Y1, s.box.Y1)
		out.X2 = max(out.X2, s.box.X2)
		out.Y2 = max(out.Y2, s.box.Y2)
		out.Width = max(out.Width, s.box.Width)
		out.Height = max(out.Height, s.box.Height)
	}
	return out
}
