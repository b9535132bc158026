package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/lpg-agent/internal/surface"
)

// hasExactSpan reports whether any span's trimmed text equals message.
func hasExactSpan(html, message string) (bool, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, err
	}
	found := false
	doc.Find("span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) == message {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

// radioChoice is the selectable control matching a category.
type radioChoice struct {
	Value    string
	HasLabel bool
}

// modalContent is what the workflow needs from a modal snapshot.
type modalContent struct {
	Text   string
	Radios []radioChoice
}

func parseModal(html string) (modalContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return modalContent{}, err
	}
	mc := modalContent{Text: doc.Text()}
	doc.Find(`input[type="radio"]`).Each(func(_ int, s *goquery.Selection) {
		// A radio without a value attribute reports "on" as its value property.
		value, ok := s.Attr("value")
		if !ok {
			value = "on"
		}
		mc.Radios = append(mc.Radios, radioChoice{
			Value:    value,
			HasLabel: s.ParentsFiltered("label").Length() > 0,
		})
	})
	return mc, nil
}

// match returns the control whose value equals category, ignoring case and
// surrounding whitespace.
func (mc modalContent) match(category string) (radioChoice, bool) {
	want := strings.ToLower(strings.TrimSpace(category))
	for _, r := range mc.Radios {
		if strings.ToLower(strings.TrimSpace(r.Value)) == want {
			return r, true
		}
	}
	return radioChoice{}, false
}

// radioLabel locates the label wrapping the radio with value inside container.
// Containers that cannot be expressed as XPath fall back to a CSS :has query.
func radioLabel(container, value string) string {
	if scope, ok := containerXPath(container); ok {
		return fmt.Sprintf("%s//input[@type='radio' and @value=%s]/ancestor::label[1]", scope, xpathLiteral(value))
	}
	return fmt.Sprintf(`%s label:has(input[type="radio"][value=%s])`, container, cssString(value))
}

var (
	compoundSelector = regexp.MustCompile(`^([A-Za-z][\w-]*)?((?:[.#][\w-]+)*)$`)
	selectorPart     = regexp.MustCompile(`[.#][\w-]+`)
)

// containerXPath converts a container selector to XPath. XPath passes through;
// CSS is converted when it is a single tag, id and class compound.
func containerXPath(container string) (string, bool) {
	container = strings.TrimSpace(container)
	if surface.IsXPath(container) {
		return container, true
	}
	m := compoundSelector.FindStringSubmatch(container)
	if m == nil || container == "" {
		return "", false
	}

	tag := m[1]
	if tag == "" {
		tag = "*"
	}
	var preds []string
	for _, part := range selectorPart.FindAllString(m[2], -1) {
		name := part[1:]
		if part[0] == '#' {
			preds = append(preds, "@id="+xpathLiteral(name))
			continue
		}
		preds = append(preds, fmt.Sprintf("contains(concat(' ', normalize-space(@class), ' '), ' %s ')", name))
	}

	xp := "//" + tag
	if len(preds) > 0 {
		xp += "[" + strings.Join(preds, " and ") + "]"
	}
	return xp, true
}

// radioCSS locates the radio with value inside container.
func radioCSS(container, value string) string {
	return fmt.Sprintf(`%s input[type="radio"][value=%s]`, container, cssString(value))
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = "'" + p + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}
