package web

import "html/template"

// StatusPageName is the template rendered by the confirmation endpoint.
const StatusPageName = "status_page"

// StatusPageData feeds the rendered confirmation page.
type StatusPageData struct {
	Title string
	// Indicator is "green" for success and "red" for expired/invalid links.
	Indicator string
	Message   string
}

const statusPage = `
<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 0; background: #f5f7fa; }
.card { max-width: 480px; margin: 10vh auto; padding: 2rem; background: #fff; border-radius: 8px; box-shadow: 0 1px 4px rgba(0,0,0,.12); }
.indicator { display: inline-block; width: 12px; height: 12px; border-radius: 50%; margin-right: 8px; }
.indicator.green { background: #28a745; }
.indicator.red { background: #dc3545; }
h1 { font-size: 1.4rem; margin-top: 0; }
</style>
</head>
<body>
<div class="card">
<h1><span class="indicator {{.Indicator}}"></span>{{.Title}}</h1>
<p>{{.Message}}</p>
</div>
</body>
</html>
`

// Templates returns the compiled template set for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.New(StatusPageName).Parse(statusPage))
}
