// Package view renders the embedded page templates and carries the htmx
// response conventions shared by every handler.
package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/debemdeboas/folio/internal/cache"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/theme"
	"github.com/debemdeboas/folio/internal/util"
	"github.com/rs/zerolog"
)

var viewLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	viewLogger = l
}

type Renderer struct {
	fs    fs.FS
	funcs template.FuncMap
}

func New(fsys fs.FS) *Renderer {
	return &Renderer{fs: fsys, funcs: Funcs()}
}

// Funcs are the helpers every template may call.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"static": func(path string) string {
			url := config.StaticUrlPath + strings.TrimPrefix(path, "/")
			if hash, ok := cache.GetStaticHash(url); ok {
				return url + "?v=" + hash
			}
			return url
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"postURL": func(slug string) string {
			return config.PostsUrlPath + slug
		},
		"categoryURL": func(key string) string {
			return config.CategoriesUrlPath + key
		},
		"tagURL": func(key string) string {
			return config.TagsUrlPath + key
		},
		"join": strings.Join,
		"statuses": func() []model.PostStatus {
			return model.PostStatuses
		},
		"newsletter": func() bool {
			return config.AppConfig.Features.Newsletter.Enabled && config.AppConfig.Content.Source == config.ContentSourceAPI
		},
		"themeIcon": func(current string) template.HTML {
			return template.HTML(theme.GetThemeIcon(current))
		},
		// dict builds the data of a partial included from a page.
		"dict": func(kv ...any) (map[string]any, error) {
			if len(kv)%2 != 0 {
				return nil, errors.New("dict needs key and value pairs")
			}
			m := make(map[string]any, len(kv)/2)
			for i := 0; i < len(kv); i += 2 {
				k, ok := kv[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict key %v is not a string", kv[i])
				}
				m[k] = kv[i+1]
			}
			return m, nil
		},
		"has": func(ids []int64, id int64) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}
}

func (v *Renderer) parse(names ...string) (*template.Template, error) {
	paths := make([]string, 0, len(names))
	for _, n := range names {
		paths = append(paths, config.TemplatesLocalDir+"/"+n)
	}
	return template.New(names[0]).Funcs(v.funcs).ParseFS(v.fs, paths...)
}

// Page renders page inside the layout. The body is buffered so a template
// error still produces a clean 500.
func (v *Renderer) Page(w http.ResponseWriter, r *http.Request, page string, data any) {
	tmpl, err := v.parse(config.TemplateLayout, config.TemplatePartials, page)
	if err != nil {
		v.fail(w, r, page, err)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, config.TemplateLayout, data); err != nil {
		v.fail(w, r, page, err)
		return
	}

	w.Header().Set(config.HCType, config.CTypeHTML+"; charset=utf-8")
	w.Header().Set(config.HETag, util.ContentHash(buf.Bytes()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Fragment executes one named template from the partials file.
func (v *Renderer) Fragment(name string, data any) ([]byte, error) {
	tmpl, err := v.parse(config.TemplatePartials)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Partial writes one named template from the partials file.
func (v *Renderer) Partial(w http.ResponseWriter, r *http.Request, name string, data any) {
	out, err := v.Fragment(name, data)
	if err != nil {
		v.fail(w, r, name, err)
		return
	}

	w.Header().Set(config.HCType, config.CTypeHTML+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (v *Renderer) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("Template execution failed")
	http.Error(w, config.ErrInternalServerError, http.StatusInternalServerError)
}
