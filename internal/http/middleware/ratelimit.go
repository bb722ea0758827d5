package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc extrai a chave de limitação da requisição; ok=false deixa passar sem limitar.
type KeyFunc func(r *http.Request) (key string, ok bool)

// Limiter mantém um token bucket por chave. Buckets ociosos por mais de
// idle são descartados numa varredura feita no máximo uma vez por idle.
type Limiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter cria limiter com reqPerSec de reposição e rajada burst.
func NewLimiter(reqPerSec float64, burst int) *Limiter {
	return &Limiter{
		limit:   rate.Limit(reqPerSec),
		burst:   burst,
		idle:    10 * time.Minute,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consome uma ficha da chave. Quando negado, devolve quanto falta
// para a próxima ficha.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idle {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// Len devolve quantas chaves estão em memória.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}

// Middleware responde 429 com Retry-After quando a chave estoura o limite.
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k, ok := key(r)
			if !ok || k == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, wait := l.Allow(k)
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "limite de requisições excedido")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByClientIP usa o IP do cliente, já normalizado pelo RealIP do chi.
func ByClientIP(r *http.Request) (string, bool) {
	return "ip:" + clientIP(r), true
}

// BySubject usa o papel e a identidade do token de acesso. Sem token não limita.
func BySubject(r *http.Request) (string, bool) {
	claims := GetClaims(r.Context())
	if claims == nil || claims.Subject == "" {
		return "", false
	}
	return "sub:" + claims.Role + ":" + claims.Subject, true
}

const credentialBodyLimit = 64 << 10

// ByCredential combina o IP com o id público enviado no corpo, limitando
// tentativas contra uma mesma conta em login e recuperação de senha. O corpo
// é devolvido intacto para o handler.
func ByCredential(r *http.Request) (string, bool) {
	if r.Body == nil {
		return "", false
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, credentialBodyLimit))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return "", false
	}

	var payload struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &payload) != nil {
		return "", false
	}
	id := strings.ToUpper(strings.TrimSpace(payload.ID))
	if id == "" {
		return "", false
	}
	return "cred:" + clientIP(r) + ":" + id, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
