package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type blockKind int

const (
	blockHeading blockKind = iota
	blockParagraph
	blockTable
	blockImage
	blockPlaceholder
)

type block struct {
	kind    blockKind
	level   int
	text    string
	class   string
	table   *tableBlock
	image   *imageBlock
	caption string
}

type tableBlock struct {
	name    string
	caption string
	header  []string
	numeric []bool
	rows    [][]string
}

type imageBlock struct {
	id     string
	data   []byte
	format string
	width  int
	height int
}

type sectionBlock struct {
	pageBreak bool
	blocks    []block
}

// document is the printable structure of a composed report.
type document struct {
	title    string
	header   []block
	sections []sectionBlock
}

// parse reads the composed HTML. The parser itself is lenient, so structure
// is checked here: a report needs a body with a header or sections, and
// every image must be an inline data URI.
func parse(src []byte) (*document, error) {
	root, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &document{}
	if t := find(root, func(n *html.Node) bool { return n.DataAtom == atom.Title }); t != nil {
		doc.title = text(t)
	}
	body := find(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if body == nil {
		return nil, fmt.Errorf("document has no body")
	}

	images := 0
	for n := body.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode {
			continue
		}
		switch {
		case n.DataAtom == atom.Header:
			blocks, err := parseBlocks(n, &images)
			if err != nil {
				return nil, err
			}
			doc.header = append(doc.header, blocks...)
		case n.DataAtom == atom.Section && hasClass(n, "report-section"):
			blocks, err := parseBlocks(n, &images)
			if err != nil {
				return nil, err
			}
			doc.sections = append(doc.sections, sectionBlock{
				pageBreak: attr(n, "data-break") == "page",
				blocks:    blocks,
			})
		}
	}
	if len(doc.header) == 0 && len(doc.sections) == 0 {
		return nil, fmt.Errorf("document has no report header or sections")
	}
	return doc, nil
}

func parseBlocks(parent *html.Node, images *int) ([]block, error) {
	var out []block
	for n := parent.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode {
			continue
		}
		switch n.DataAtom {
		case atom.H1, atom.H2, atom.H3:
			level, _ := strconv.Atoi(n.Data[1:])
			out = append(out, block{kind: blockHeading, level: level, text: text(n)})
		case atom.P:
			out = append(out, block{kind: blockParagraph, text: text(n), class: attr(n, "class")})
		case atom.Table:
			out = append(out, block{kind: blockTable, table: parseTable(n)})
		case atom.Figure:
			b, err := parseFigure(n, images)
			if err != nil {
				return nil, err
			}
			out = append(out, b)
		}
	}
	return out, nil
}

func parseTable(n *html.Node) *tableBlock {
	t := &tableBlock{name: attr(n, "data-table")}
	if c := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Caption }); c != nil {
		t.caption = text(c)
	}
	if head := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Thead }); head != nil {
		each(head, atom.Th, func(th *html.Node) {
			t.header = append(t.header, text(th))
			t.numeric = append(t.numeric, hasClass(th, "num"))
		})
	}
	body := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Tbody })
	if body == nil {
		return t
	}
	each(body, atom.Tr, func(tr *html.Node) {
		var row []string
		each(tr, atom.Td, func(td *html.Node) {
			row = append(row, text(td))
		})
		t.rows = append(t.rows, row)
	})
	return t
}

func parseFigure(n *html.Node, images *int) (block, error) {
	id := attr(n, "data-chart")
	caption := ""
	if c := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Figcaption }); c != nil {
		caption = text(c)
	}

	img := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Img })
	if img == nil {
		return block{kind: blockPlaceholder, text: "Chart unavailable", caption: caption}, nil
	}

	data, format, err := decodeDataURI(attr(img, "src"))
	if err != nil {
		return block{}, fmt.Errorf("chart %q: %w", id, err)
	}
	*images++
	w, _ := strconv.Atoi(attr(img, "width"))
	h, _ := strconv.Atoi(attr(img, "height"))
	return block{
		kind:    blockImage,
		caption: caption,
		image: &imageBlock{
			id:     fmt.Sprintf("img-%d-%s", *images, id),
			data:   data,
			format: format,
			width:  w,
			height: h,
		},
	}, nil
}

// decodeDataURI accepts base64 PNG and JPEG data URIs only. Anything else
// would need a fetch, which the exporter never does.
func decodeDataURI(src string) ([]byte, string, error) {
	meta, payload, ok := strings.Cut(src, ",")
	if !ok || !strings.HasPrefix(meta, "data:") || !strings.HasSuffix(meta, ";base64") {
		return nil, "", fmt.Errorf("image source is not an inline base64 data uri")
	}
	var format string
	switch strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64") {
	case "image/png":
		format = "PNG"
	case "image/jpeg":
		format = "JPG"
	default:
		return nil, "", fmt.Errorf("unsupported image type %q", meta)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("image is empty")
	}
	return data, format, nil
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func each(n *html.Node, a atom.Atom, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == a {
			fn(c)
			continue
		}
		each(c, a, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
