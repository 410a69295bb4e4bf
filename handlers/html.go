// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"html/template"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/danielhkuo/propjockey/models"
	"github.com/danielhkuo/propjockey/ranking"
)

var (
	formulaNumber = regexp.MustCompile(`(\.?\d+\.?\d*)`)
	symbolMark    = regexp.MustCompile(`_(\d)|-(\d)`)
)

// FormatDescription renders "formula symbol" descriptions with subscripted
// counts and space-group notation, so "Fe2O3 R-3c" becomes Fe<sub>2</sub>O<sub>3</sub>
// followed by R with an overlined 3. Text after the first space is the
// symbol. Everything else is escaped.
func FormatDescription(desc string) template.HTML {
	formula, symbol, hasSymbol := strings.Cut(desc, " ")
	formula = strings.Join(strings.Fields(formula), "")

	var b strings.Builder
	markup(&b, formulaNumber, formula, func(m []string) (string, string, string) {
		return "<sub>", m[1], "</sub>"
	})
	if hasSymbol {
		b.WriteByte(' ')
		markup(&b, symbolMark, symbol, func(m []string) (string, string, string) {
			if m[1] != "" {
				return "<sub>", m[1], "</sub>"
			}
			return `<span style="text-decoration:overline;">`, m[2], "</span>"
		})
	}
	return template.HTML(b.String())
}

// markup escapes s and wraps each match of re in the tag chosen by pick.
func markup(b *strings.Builder, re *regexp.Regexp, s string, pick func(m []string) (open, text, close string)) {
	last := 0
	for _, loc := range re.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(template.HTMLEscapeString(s[last:loc[0]]))
		m := make([]string, len(loc)/2)
		for i := range m {
			if loc[2*i] >= 0 {
				m[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		open, text, end := pick(m)
		b.WriteString(open + template.HTMLEscapeString(text) + end)
		last = loc[1]
	}
	b.WriteString(template.HTMLEscapeString(s[last:]))
}

var pageTemplate = template.Must(template.New("rows").Funcs(template.FuncMap{
	"describe": FormatDescription,
	"deref":    func(b *bool) bool { return b != nil && *b },
}).Parse(`<table class="propjockey-rows">
<thead><tr><th>Entry</th><th>{{.RankLabel}}</th><th>Requests</th><th>{{.PropertyLabel}}</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr class="{{.Tier}}" data-id="{{.ID}}">
<td><a href="{{.EntryLink}}">{{describe .Description}}</a></td>
<td>{{printf "%.3f" .RankValue}}</td>
<td>{{if .RequestCount}}{{.RequestCount}}{{if deref .VotedByCaller}} (you){{end}}{{end}}</td>
<td>{{if .PropertyLink}}<a href="{{.PropertyLink}}">available</a>{{else if .WorkflowLink}}<a href="{{.WorkflowLink}}">{{.WorkflowID}}</a>{{end}}</td>
</tr>
{{- end}}
</tbody>
</table>
{{- if .Next}}
<a class="next" href="{{.Next}}">Next page</a>
{{- end}}
`))

type htmlPage struct {
	Rows          []models.Row
	RankLabel     string
	PropertyLabel string
	Next          string
}

func (h *FeedHandler) renderHTML(w http.ResponseWriter, r *http.Request, p ranking.Params, page ranking.Page) {
	data := htmlPage{
		Rows:          page.Rows,
		RankLabel:     h.cfg.RankLabel,
		PropertyLabel: h.cfg.PropertyLabel,
	}
	if !page.NoMore {
		q := r.URL.Query()
		q.Set("pnum", strconv.Itoa(p.PageNum+1))
		q.Set("psize", strconv.Itoa(p.PageSize))
		data.Next = r.URL.Path + "?" + q.Encode()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		h.log.Error().Err(err).Msg("failed to render rows")
	}
}
