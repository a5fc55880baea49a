package application

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// TokenFunc gera o token de alocação (único, ordenável por tempo).
type TokenFunc func(now time.Time) (string, error)

func newULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
