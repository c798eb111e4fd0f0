// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-signer.
//
// go-signer is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package keystore implements a password-protected container of signing
// identities. Each entry holds a private key sealed with a key derived
// from the container password, plus the certificate chain for the key,
// signer first. Containers are stored as YAML.
//
// GOST R 34.10 keys have no PKCS#12 or encrypted PKCS#8 support in the
// Go ecosystem, so the container seals a plain PKCS#8 encoding itself
// with Argon2id and ChaCha20-Poly1305. PKCS#12 files and PEM keys can be
// imported into a container.
package keystore

import (
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-signer/pkg/validation"
)

// Version is the container format version written by Save.
const Version = 1

// Binary is a byte slice stored as base64 text.
type Binary []byte

// MarshalYAML implements yaml.Marshaler.
func (b Binary) MarshalYAML() (interface{}, error) {
	return base64.StdEncoding.EncodeToString(b), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (b *Binary) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: line %d: %v", ErrInvalidFormat, value.Line, err)
	}
	*b = decoded
	return nil
}

// Entry is one sealed identity.
type Entry struct {
	Alias     string    `yaml:"alias"`
	Algorithm string    `yaml:"algorithm"`
	Created   time.Time `yaml:"created"`
	KDF       KDFParams `yaml:"kdf"`
	Nonce     Binary    `yaml:"nonce"`
	Key       Binary    `yaml:"key"`
	Chain     []Binary  `yaml:"chain"`
}

// KeyStore is an in-memory container.
type KeyStore struct {
	Version int      `yaml:"version"`
	Entries []*Entry `yaml:"entries"`

	// KDF sets the cost of entries added from now on
	KDF KDFParams `yaml:"-"`
}

// New returns an empty container.
func New() *KeyStore {
	return &KeyStore{Version: Version, KDF: DefaultKDFParams()}
}

// Parse decodes a container.
func Parse(data []byte) (*KeyStore, error) {
	ks := New()
	if err := yaml.Unmarshal(data, ks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if ks.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, ks.Version)
	}
	return ks, nil
}

// Load reads a container file.
func Load(path string) (*KeyStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the container.
func (ks *KeyStore) Marshal() ([]byte, error) {
	return yaml.Marshal(ks)
}

// Save writes the container to path with owner-only permissions.
func (ks *KeyStore) Save(path string) error {
	data, err := ks.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create keystore directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Aliases returns the entry aliases in sorted order.
func (ks *KeyStore) Aliases() []string {
	aliases := make([]string, 0, len(ks.Entries))
	for _, e := range ks.Entries {
		aliases = append(aliases, e.Alias)
	}
	sort.Strings(aliases)
	return aliases
}

func (ks *KeyStore) entry(alias string) (*Entry, bool) {
	for _, e := range ks.Entries {
		if e.Alias == alias {
			return e, true
		}
	}
	return nil, false
}

// Add seals key under password and stores it with chain as alias. The
// first chain certificate must hold the public half of key.
func (ks *KeyStore) Add(alias string, key any, chain []*x509.Certificate, password []byte) error {
	if err := validation.ValidateAlias(alias); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if _, ok := ks.entry(alias); ok {
		return fmt.Errorf("%w: %s", ErrAliasExists, alias)
	}
	if len(chain) == 0 {
		return fmt.Errorf("%w: no certificate for %s", ErrInvalidFormat, alias)
	}
	if err := MatchCertificate(key, chain[0]); err != nil {
		return err
	}
	der, err := MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	defer clear(der)

	params, nonce, sealed, err := seal(defaultRand, ks.KDF, password, alias, der)
	if err != nil {
		return fmt.Errorf("failed to seal %s: %w", alias, err)
	}
	entry := &Entry{
		Alias:     alias,
		Algorithm: KeyAlgorithm(key),
		Created:   time.Now().UTC().Truncate(time.Second),
		KDF:       params,
		Nonce:     nonce,
		Key:       sealed,
	}
	for _, cert := range chain {
		entry.Chain = append(entry.Chain, Binary(cert.Raw))
	}
	ks.Entries = append(ks.Entries, entry)
	return nil
}

// Get unseals the key stored as alias and returns it with its chain.
func (ks *KeyStore) Get(alias string, password []byte) (any, []*x509.Certificate, error) {
	entry, ok := ks.entry(alias)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrAliasNotFound, alias)
	}
	chain, err := ks.Chain(alias)
	if err != nil {
		return nil, nil, err
	}
	der, err := open(entry.KDF, password, alias, entry.Nonce, entry.Key)
	if err != nil {
		return nil, nil, err
	}
	defer clear(der)

	key, err := ParsePrivateKey(der)
	if err != nil {
		return nil, nil, err
	}
	return key, chain, nil
}

// Chain returns the certificates stored as alias without unsealing the key.
func (ks *KeyStore) Chain(alias string) ([]*x509.Certificate, error) {
	entry, ok := ks.entry(alias)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAliasNotFound, alias)
	}
	chain := make([]*x509.Certificate, 0, len(entry.Chain))
	for i, der := range entry.Chain {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %s certificate %d: %v", ErrInvalidFormat, alias, i, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// Delete removes alias.
func (ks *KeyStore) Delete(alias string) error {
	for i, e := range ks.Entries {
		if e.Alias == alias {
			ks.Entries = append(ks.Entries[:i], ks.Entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrAliasNotFound, alias)
}
