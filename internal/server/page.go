package server

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	"github.com/amoylab/castwall/internal/registry"

	"github.com/Masterminds/sprig/v3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const statusPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>castwall</title>
</head>
<body>
<h1>castwall</h1>
<p>Client {{ .ClientID }} &middot; session {{ .Session }}</p>
<p>{{ .Windows }} {{ if eq .Windows 1 }}window{{ else }}windows{{ end }} &middot; {{ .ActiveClients }} active {{ .ActiveClients | plural "client" "clients" }}</p>
<h2>Tiled</h2>
<img src="/video_feed_tiled" alt="tiled view">
<p><a href="/screenshot_tiled">screenshot</a></p>
{{- range $i := until .Windows }}
<h2>Window {{ $i }}</h2>
<img src="/video_feed_window/{{ $i }}" alt="window {{ $i }}">
<p><a href="/screenshot_window/{{ $i }}">screenshot</a></p>
{{- end }}
<p><small>{{ .Now | date "15:04:05" }} &middot; clients idle for more than {{ .Timeout }} are dropped</small></p>
</body>
</html>
`

type statusData struct {
	ClientID      int64
	Session       string
	Windows       int
	ActiveClients int
	Timeout       string
	Now           time.Time
}

func parseStatusPage() (*template.Template, error) {
	return template.New("status").Funcs(sprig.FuncMap()).Funcs(template.FuncMap{
		"plural": func(one, many string, n int) string {
			if n == 1 {
				return one
			}
			return many
		},
	}).Parse(statusPage)
}

// handleIndex renders the status page
func (s *Server) handleIndex(c *gin.Context) {
	ident := identity(c)
	now := s.registry.Now()
	windows := min(s.windows.WindowsCount(), s.registry.MaxWindows())

	var buf bytes.Buffer
	err := s.page.Execute(&buf, statusData{
		ClientID:      ident.ClientID,
		Session:       registry.AbbreviateSession(ident.SessionID),
		Windows:       windows,
		ActiveClients: s.registry.ActiveCount(now),
		Timeout:       s.registry.Timeout().String(),
		Now:           now,
	})
	if err != nil {
		s.logger.Error("failed to render status page", zap.Error(err))
		c.String(http.StatusInternalServerError, "internal server error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
