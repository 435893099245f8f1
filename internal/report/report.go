// Package report renders an interaction log for educators and researchers.
package report

import (
	"encoding/json"
	"html/template"
	"io"

	"github.com/celerix-dev/celerix-pond/internal/interaction"
)

// DefaultTitle is the heading the exported results page has always used.
const DefaultTitle = "Measuring Skills, CTL, CSL, VT"

var page = template.Must(template.New("report").Funcs(template.FuncMap{
	"band": band,
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
table{border-collapse:collapse;font-family:sans-serif;font-size:13px}
th,td{border:1px solid #ccc;padding:4px 8px;text-align:left;vertical-align:top}
tr.even td{background:#f3f6fa}
td.workspace{font-family:monospace;white-space:pre-wrap;max-width:60em}
</style></head>
<body><div id="results">
<table>
<thead><tr><th>Level</th><th>Timestamp</th><th>Action</th><th>Workspace</th></tr></thead>
<tbody>
{{- range .Records}}
<tr class="{{band .Sequence}}" data-sequence="{{.Sequence}}"><td>{{.Level}}</td><td>{{.Timestamp}}</td><td>{{.Action}}</td><td class="workspace">{{.WorkspaceState}}</td></tr>
{{- end}}
</tbody>
</table>
{{- if .Malformed}}
<h3>Unreadable entries</h3>
<ul>
{{- range .Malformed}}
<li>#{{.Sequence}}: {{.Reason}}</li>
{{- end}}
</ul>
{{- end}}
</div></body></html>
`))

type pageData struct {
	Title string
	interaction.Enumeration
}

func band(seq int) string {
	if seq%2 == 0 {
		return "even"
	}
	return "odd"
}

// HTML writes the log as a table with one row per record.
// An empty title falls back to DefaultTitle.
func HTML(w io.Writer, title string, e interaction.Enumeration) error {
	if title == "" {
		title = DefaultTitle
	}
	return page.Execute(w, pageData{Title: title, Enumeration: e})
}

// JSON writes the enumeration as indented JSON. Workspace XML is left unescaped.
func JSON(w io.Writer, e interaction.Enumeration) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}
