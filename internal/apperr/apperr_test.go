package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("provision: %w", StorageFailed("falha ao gravar", cause))

	if !errors.Is(err, ErrStorageFailed) {
		t.Fatalf("expected StorageFailed match, got %v", err)
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("did not expect Conflict match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable")
	}
}

func TestPublicMessageHidesInternalErrors(t *testing.T) {
	if got := PublicMessage(errors.New("pq: relation does not exist")); got != "erro interno" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := PublicMessage(NotFound("usuário não existe")); got != "usuário não existe" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:           http.StatusNotFound,
		KindUnauthorized:       http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindPreconditionFailed: http.StatusPreconditionFailed,
		KindConflict:           http.StatusConflict,
		KindBadRequest:         http.StatusBadRequest,
		KindStorageFailed:      http.StatusServiceUnavailable,
		Kind("other"):          http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("%s: expected %d, got %d", kind, want, got)
		}
	}
}
