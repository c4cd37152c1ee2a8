package handlers

import "net/http"

func (a *App) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list := a.Templates.List(r.URL.Query().Get("category"))
	a.json(w, http.StatusOK, map[string]any{"templates": list})
}
