package imagedir

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dshills/pageview/internal/geom"
	"github.com/dshills/pageview/internal/textlayout"
)

// Sidecar is the YAML glyph geometry of one page, in page units with the
// origin at the top left:
//
//	chars:
//	  - {c: "H", l: 10, t: 10, r: 16, b: 20}
//	words:
//	  - {text: "hello", l: 10, t: 40, r: 40, b: 50}
//
// Word entries are expanded to glyphs of equal width.
type Sidecar struct {
	Chars []SidecarChar `yaml:"chars"`
	Words []SidecarWord `yaml:"words"`
}

// SidecarChar is a single glyph.
type SidecarChar struct {
	C string  `yaml:"c"`
	L float64 `yaml:"l"`
	T float64 `yaml:"t"`
	R float64 `yaml:"r"`
	B float64 `yaml:"b"`
}

// SidecarWord is a run of glyphs sharing one box.
type SidecarWord struct {
	Text string  `yaml:"text"`
	L    float64 `yaml:"l"`
	T    float64 `yaml:"t"`
	R    float64 `yaml:"r"`
	B    float64 `yaml:"b"`
}

// ParseSidecar decodes sidecar YAML into character boxes.
func ParseSidecar(data []byte) ([]textlayout.CharBox, error) {
	var sc Sidecar
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	return sc.CharBoxes()
}

// CharBoxes returns the glyphs of every entry.
func (sc *Sidecar) CharBoxes() ([]textlayout.CharBox, error) {
	var chars []textlayout.CharBox

	for i, c := range sc.Chars {
		runes := []rune(c.C)
		if len(runes) != 1 {
			return nil, fmt.Errorf("chars[%d]: %q is not a single character", i, c.C)
		}
		chars = append(chars, textlayout.CharBox{Char: runes[0], Box: geom.R(c.L, c.T, c.R, c.B)})
	}

	for _, w := range sc.Words {
		runes := []rune(w.Text)
		if len(runes) == 0 {
			continue
		}
		step := (w.R - w.L) / float64(len(runes))
		for j, r := range runes {
			left := w.L + float64(j)*step
			chars = append(chars, textlayout.CharBox{Char: r, Box: geom.R(left, w.T, left+step, w.B)})
		}
	}
	return chars, nil
}
