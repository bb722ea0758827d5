// Package events expõe o transporte publish/subscribe entre serviços.
//
// A entrega é at-least-once, sem ordenação entre publicadores, e um handler
// pode rodar concorrentemente consigo mesmo. O adaptador não faz retry:
// erros devolvidos pelo handler são apenas registrados.
package events

import (
	"context"
	"errors"
)

// Handler processa o payload bruto de um evento.
type Handler func(ctx context.Context, payload []byte) error

// Subscription representa uma inscrição ativa.
type Subscription interface {
	Close() error
}

// Bus publica e assina eventos nomeados.
type Bus interface {
	Publish(ctx context.Context, name string, payload []byte) error
	Subscribe(ctx context.Context, name string, handler Handler) (Subscription, error)
}

// ErrClosed é devolvido quando o barramento já foi encerrado.
var ErrClosed = errors.New("events: barramento encerrado")
