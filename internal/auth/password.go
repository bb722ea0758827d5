package auth

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

var params = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// ErrEmptyPassword impede gravar hash de senha vazia.
var ErrEmptyPassword = errors.New("senha vazia")

// Hash gera um hash Argon2id (inclui os parâmetros dentro do próprio hash).
func Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return argon2id.CreateHash(password, params)
}

// Verify compara a senha com o hash. Hash malformado conta como divergência.
func Verify(password, encodedHash string) bool {
	ok, err := argon2id.ComparePasswordAndHash(password, encodedHash)
	return err == nil && ok
}
