package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
	corsExposed = "X-Request-Id, Retry-After"
)

// OriginPolicy decide quais origens de navegador podem chamar a API com o
// cookie de refresh. Entradas aceitas em ALLOW_ORIGINS:
//
//	https://portal.universidade.edu   origem exata
//	*.universidade.edu                qualquer subdomínio, qualquer esquema
//	https://*.universidade.edu        qualquer subdomínio, só https
type OriginPolicy struct {
	exact    map[string]struct{}
	patterns []originPattern
	maxAge   time.Duration
}

type originPattern struct {
	scheme string
	suffix string
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{}), maxAge: 10 * time.Minute}
	for _, entry := range origins {
		e := strings.ToLower(strings.TrimRight(strings.TrimSpace(entry), "/"))
		if e == "" {
			continue
		}
		scheme, rest := "", e
		if i := strings.Index(e, "://"); i >= 0 {
			scheme, rest = e[:i], e[i+3:]
		}
		if strings.HasPrefix(rest, "*.") {
			p.patterns = append(p.patterns, originPattern{scheme: scheme, suffix: rest[1:]})
			continue
		}
		p.exact[e] = struct{}{}
	}
	return p
}

// Allows exige subdomínio nas entradas curinga: a raiz não casa.
func (p *OriginPolicy) Allows(origin string) bool {
	origin = strings.ToLower(origin)
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	for _, pat := range p.patterns {
		if pat.scheme != "" && pat.scheme != u.Scheme {
			continue
		}
		if strings.HasSuffix(host, pat.suffix) && len(host) > len(pat.suffix) {
			return true
		}
	}
	return false
}

// Handler responde o preflight e marca respostas de origens permitidas.
func (p *OriginPolicy) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		if !p.Allows(origin) {
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		if !preflight {
			h.Set("Access-Control-Expose-Headers", corsExposed)
			next.ServeHTTP(w, r)
			return
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
		h.Set("Access-Control-Allow-Headers", corsHeaders)
		h.Set("Access-Control-Max-Age", strconv.Itoa(int(p.maxAge.Seconds())))
		w.WriteHeader(http.StatusNoContent)
	})
}

// HasLocalOrigin indica origem de desenvolvimento, que recebe cookies sem Secure.
func (p *OriginPolicy) HasLocalOrigin() bool {
	for origin := range p.exact {
		if u, err := url.Parse(origin); err == nil && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
			return true
		}
	}
	return false
}
