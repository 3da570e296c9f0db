package extract

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// comparer turns decoded frames into small grayscale planes for diffing.
type comparer struct {
	src image.Rectangle
	dst image.Rectangle
}

func newComparer(width, height int, roi *ROI, compareWidth int) comparer {
	src := image.Rect(0, 0, width, height)
	if roi != nil {
		src = roi.Rect(width, height)
	}
	w, h := src.Dx(), src.Dy()
	if compareWidth > 0 && w > compareWidth {
		scale := float64(compareWidth) / float64(w)
		w = compareWidth
		h = max(1, int(float64(h)*scale))
	}
	return comparer{src: src, dst: image.Rect(0, 0, w, h)}
}

// gray crops and scales img. Gray conversion uses the BT.601 luma weights of
// color.GrayModel.
func (c comparer) gray(img image.Image) *image.Gray {
	out := image.NewGray(c.dst)
	if c.dst.Dx() == c.src.Dx() && c.dst.Dy() == c.src.Dy() {
		xdraw.Copy(out, image.Point{}, img, c.src, xdraw.Src, nil)
		return out
	}
	xdraw.ApproxBiLinear.Scale(out, c.dst, img, c.src, xdraw.Src, nil)
	return out
}

// meanAbsDiff returns the mean absolute pixel difference on a 0-255 scale.
func meanAbsDiff(a, b *image.Gray) float64 {
	if a == nil || b == nil || len(a.Pix) == 0 || len(a.Pix) != len(b.Pix) {
		return 255
	}
	var total uint64
	for i, av := range a.Pix {
		bv := b.Pix[i]
		if av > bv {
			total += uint64(av - bv)
		} else {
			total += uint64(bv - av)
		}
	}
	return float64(total) / float64(len(a.Pix))
}

// history is a bounded window of recently accepted slides.
type history struct {
	limit   int
	entries []*image.Gray
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

func (h *history) enabled() bool {
	return h.limit > 0
}

func (h *history) push(g *image.Gray) {
	if !h.enabled() {
		return
	}
	h.entries = append(h.entries, g)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
}

// matches reports whether g is within threshold of any remembered slide.
func (h *history) matches(g *image.Gray, threshold float64) bool {
	for _, entry := range h.entries {
		if meanAbsDiff(g, entry) <= threshold {
			return true
		}
	}
	return false
}

func (h *history) reset() {
	h.entries = nil
}
