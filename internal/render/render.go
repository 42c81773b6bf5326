// Package render turns entries into delivery-ready text.
//
// A Dispatcher holds an ordered registry of domain keyword → template
// rules. The first keyword found as a substring of the subscription URL
// wins; unmatched URLs use the default template. Adding a site is a
// single Register call, no new code in the pipeline.
package render

import (
	"strings"
	"unicode/utf8"

	"myrss_bot/internal/model"
)

// DefaultTemplate renders entries from sites without a registered rule.
const DefaultTemplate = "[RSS] {chan_title}\nTitle: {title}\nLink: {link}\nTime: {pub_date}\n---\n{description}"

type rule struct {
	keyword  string
	template string
	// extract optionally rewrites entry fields (link, description, Extra)
	// before the template is applied.
	extract func(model.Entry) model.Entry
}

// Dispatcher selects and applies per-domain templates.
type Dispatcher struct {
	rules      []rule
	defaultTpl string
	maxDescLen int
}

// NewDispatcher creates a Dispatcher with the built-in site rules.
// maxDescLen bounds the rendered description length in runes; 0 means
// unlimited.
func NewDispatcher(maxDescLen int) *Dispatcher {
	d := &Dispatcher{
		defaultTpl: DefaultTemplate,
		maxDescLen: maxDescLen,
	}
	// nyaa titles repeat the description, dmhy descriptions are HTML noise;
	// both sites render without one.
	d.RegisterExtract("nyaa.si", "[Nyaa] {title}\n{link}\nTime: {pub_date}", nyaaFields)
	d.RegisterExtract("share.dmhy.org", "[DMHY] {title}\n{link}\nTime: {pub_date}", dmhyFields)
	d.RegisterExtract("mikan.tangbai.cc", "[Mikan] {title}\n{link}\nTime: {pub_date}", mikanFields)
	return d
}

// nyaa's link is the .torrent download; the guid carries the page link.
// Swap them so the message leads with the page and offers the torrent as
// the extra line.
func nyaaFields(e model.Entry) model.Entry {
	if strings.HasPrefix(e.GUID, "http") {
		e.Link, e.Extra = e.GUID, e.Link
	}
	return e
}

// dmhy enclosures carry a magnet link with a long tracker list; keep only
// the hash part.
func dmhyFields(e model.Entry) model.Entry {
	for _, enc := range e.Enclosures {
		if strings.HasPrefix(enc, "magnet:") {
			e.Extra, _, _ = strings.Cut(enc, "&tr=")
			break
		}
	}
	return e
}

// mikan enclosures carry a .torrent download link.
func mikanFields(e model.Entry) model.Entry {
	for _, enc := range e.Enclosures {
		if strings.HasSuffix(enc, ".torrent") {
			e.Extra = enc
			break
		}
	}
	return e
}

// Register appends a keyword → template rule. Rules are matched in
// registration order, first match wins.
func (d *Dispatcher) Register(keyword, template string) {
	d.RegisterExtract(keyword, template, nil)
}

// RegisterExtract appends a rule with an extract hook that adjusts entry
// fields before templating.
func (d *Dispatcher) RegisterExtract(keyword, template string, extract func(model.Entry) model.Entry) {
	d.rules = append(d.rules, rule{keyword: keyword, template: template, extract: extract})
}

// SetDefaultTemplate replaces the fallback template.
func (d *Dispatcher) SetDefaultTemplate(template string) {
	d.defaultTpl = template
}

// Render formats an entry using the template selected by subscriptionURL.
// When the rule's extract hook yields an extra link, it is appended as a
// trailing line.
func (d *Dispatcher) Render(e model.Entry, subscriptionURL string) string {
	tpl := d.defaultTpl
	for _, r := range d.rules {
		if strings.Contains(subscriptionURL, r.keyword) {
			tpl = r.template
			if r.extract != nil {
				e = r.extract(e)
			}
			break
		}
	}

	out := strings.NewReplacer(
		"{chan_title}", e.ChanTitle,
		"{title}", e.Title,
		"{link}", e.Link,
		"{description}", Truncate(e.Description, d.maxDescLen),
		"{pub_date}", e.PubDate,
	).Replace(tpl)

	out = strings.TrimSpace(out)
	if e.Extra != "" {
		out += "\nExtra: " + e.Extra
	}
	return out
}

// Truncate cuts s to at most maxLen runes. It never splits a multi-byte
// character. maxLen <= 0 disables truncation.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
