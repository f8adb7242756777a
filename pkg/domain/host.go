package domain

import (
	"context"
	"time"
)

// HostAuth holds the authentication material for reaching a Host. Exactly one
// of Password or KeyPath is expected to be set; Passphrase only applies when
// KeyPath is set and the key is encrypted.
//
// Password and Passphrase are encrypted at rest by pkg/secretbox before a
// Host reaches the servers table; they are plaintext here because this is
// the in-memory shape the rest of the system operates on.
type HostAuth struct {
	Password   string `json:"password,omitempty"`
	KeyPath    string `json:"keyPath,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

// Host is a reachable remote machine participating in a transfer, either as
// the source or as one of the destinations.
type Host struct {
	Id         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Address    string    `json:"address" db:"address"`
	Port       int       `json:"port" db:"port"`
	Username   string    `json:"username" db:"username"`
	Auth       HostAuth  `json:"auth" db:"-"`
	AuthCipher string    `json:"-" db:"auth_cipher"` // encrypted, serialized HostAuth
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt" db:"updated_at"`
}

// HostRepository persists Host records in the "servers" namespace.
type HostRepository interface {
	Create(ctx context.Context, host Host) (Host, error)
	Update(ctx context.Context, host Host) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (Host, error)
	FindAll(ctx context.Context) ([]Host, error)
}
