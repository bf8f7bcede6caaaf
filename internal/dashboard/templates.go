package dashboard

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/beep-industries/admin/internal/auth/gate"
	"github.com/beep-industries/admin/internal/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded page and screen templates.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

type screenData struct {
	Title     string
	Screen    string
	Message   string
	SigningIn bool
}

// Screens renders the gate's screens.
type Screens struct {
	tmpl *template.Template
}

func NewScreens(tmpl *template.Template) *Screens {
	return &Screens{tmpl: tmpl}
}

// RenderScreen implements middleware.ScreenRenderer.
func (s *Screens) RenderScreen(w http.ResponseWriter, r *http.Request, status int, state gate.AuthState) {
	data := screenData{
		Title:     screenTitles[state.Screen],
		Screen:    state.Screen.String(),
		SigningIn: state.SigningIn,
	}
	if state.Err != nil {
		data.Message = state.Err.Error()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "screen", data); err != nil {
		logger.Error("failed to render screen", map[string]any{
			"screen": data.Screen,
			"path":   r.URL.Path,
			"error":  err,
		})
	}
}

var screenTitles = map[gate.Screen]string{
	gate.ScreenError:           "Error",
	gate.ScreenLoading:         "Loading",
	gate.ScreenUnauthenticated: "Sign in",
	gate.ScreenAccessDenied:    "Access denied",
	gate.ScreenAuthenticated:   "Dashboard",
}
