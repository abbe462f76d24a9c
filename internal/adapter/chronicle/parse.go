package chronicle

import (
	"io"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/couchcryptid/arvig-etl/internal/domain"
	"golang.org/x/net/html"
)

// Field classes of a chronicle entry.
const (
	classCity     = "field-name-field-city"
	classState    = "field-name-field-bundesland"
	classDate     = "field-name-field-date"
	classSource   = "field-name-field-source"
	classCategory = "field-name-field-art"
	classBody     = "field-name-body"
	classEntry    = "node-chronik-eintrag"
	classLastPage = "pager-last"
)

var fieldClasses = []string{classCity, classState, classDate, classSource, classCategory, classBody}

var pageParam = regexp.MustCompile(`page=(\d+)`)

// page is the parsed content of one listing page.
type page struct {
	records []domain.RawRecord
	// aligned is false when the field lists had unequal lengths and the
	// records were rebuilt entry by entry.
	aligned bool
}

func parsePage(r io.Reader, year, pageNr int) (page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return page{}, err
	}

	fields := map[string][]string{}
	n := len(findAll(doc, "div", classCity))
	aligned := true
	for _, class := range fieldClasses {
		for _, node := range findAll(doc, "div", class) {
			fields[class] = append(fields[class], textOf(node))
		}
		if len(fields[class]) != n {
			aligned = false
		}
	}

	if aligned {
		out := make([]domain.RawRecord, n)
		for i := range n {
			out[i] = domain.RawRecord{
				Date:          fields[classDate][i],
				City:          fields[classCity][i],
				State:         fields[classState][i],
				CategoryDE:    fields[classCategory][i],
				DescriptionDE: fields[classBody][i],
				Source:        fields[classSource][i],
				PageNr:        pageNr,
				Year:          year,
			}
		}
		return page{records: out, aligned: true}, nil
	}

	var out []domain.RawRecord
	for _, entry := range findAll(doc, "div", classEntry) {
		field := func(class string) string {
			if found := findAll(entry, "div", class); len(found) > 0 {
				return textOf(found[0])
			}
			return ""
		}
		out = append(out, domain.RawRecord{
			Date:          field(classDate),
			City:          field(classCity),
			State:         field(classState),
			CategoryDE:    field(classCategory),
			DescriptionDE: field(classBody),
			Source:        field(classSource),
			PageNr:        pageNr,
			Year:          year,
		})
	}
	return page{records: out}, nil
}

// lastPage returns the index of the last listing page, 0 without a pager.
func lastPage(r io.Reader) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, err
	}
	items := findAll(doc, "li", classLastPage)
	if len(items) == 0 {
		return 0, nil
	}
	for _, a := range findAll(items[0], "a", "") {
		m := pageParam.FindStringSubmatch(attr(a, "href"))
		if m == nil {
			continue
		}
		return strconv.Atoi(m[1])
	}
	return 0, nil
}

// findAll returns the descendants of n with the given tag that carry class
// among their class tokens. An empty class matches any element of the tag.
func findAll(n *html.Node, tag, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag &&
			(class == "" || slices.Contains(strings.Fields(attr(n, "class")), class)) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
