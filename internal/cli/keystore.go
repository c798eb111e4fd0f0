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

package cli

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-signer/internal/config"
	"github.com/jeremyhahn/go-signer/internal/password"
	"github.com/jeremyhahn/go-signer/pkg/backend/software"
	"github.com/jeremyhahn/go-signer/pkg/keystore"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
)

// EnvKeyPassword holds the password of an encrypted PEM key or PKCS#12
// file being imported
const EnvKeyPassword = "SIGNER_KEY_PASSWORD"

var importErrorTypes = metrics.ErrorClassifier{
	keystore.ErrInvalidPassword: "invalid_password",
	keystore.ErrInvalidFormat:   "invalid_format",
	keystore.ErrUnsupportedKey:  "unsupported_key",
	keystore.ErrKeyMismatch:     "key_mismatch",
	keystore.ErrAliasExists:     "alias_exists",
}

func (a *app) newKeyStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage software key containers",
		Long: `Create and inspect keystore containers. Each entry holds a private key
sealed with Argon2id and ChaCha20-Poly1305 under the container password,
together with its certificate chain. The container path is taken from
--keystore.`,
	}
	cmd.AddCommand(a.newKeyStoreCreateCmd())
	cmd.AddCommand(a.newKeyStoreListCmd())
	cmd.AddCommand(a.newKeyStoreDeleteCmd())
	return cmd
}

type importOptions struct {
	keyFile     string
	chainFile   string
	pkcs12File  string
	keyPassword string
	force       bool
}

func (a *app) newKeyStoreCreateCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add a key and its certificate chain to a keystore",
		Long: `Add a private key and its certificate chain to the keystore under
--alias, creating the container if it does not exist. The key is read
either from a PEM file (--key, plain or encrypted PKCS#8, or PKCS#1) with
the chain from --chain, or from a PKCS#12 file (--pkcs12).

Examples:
  signer keystore create --keystore signer.yaml --key key.pem --chain chain.pem
  signer keystore create --keystore signer.yaml --alias rsa --pkcs12 signer.p12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.createKeyStore(&opts)
		},
	}
	cmd.Flags().StringVar(&opts.keyFile, "key", "", "PEM private key file")
	cmd.Flags().StringVar(&opts.chainFile, "chain", "", "PEM certificate chain, signer certificate first")
	cmd.Flags().StringVar(&opts.pkcs12File, "pkcs12", "", "PKCS#12 file holding the key and chain")
	cmd.Flags().StringVar(&opts.keyPassword, "key-password", "", "password of an encrypted key or PKCS#12 file")
	cmd.Flags().BoolVar(&opts.force, "force", false, "replace an existing entry with the same alias")
	return cmd
}

func (a *app) createKeyStore(opts *importOptions) (err error) {
	path := a.cfg.Software.Path
	if path == "" {
		return errors.New("a keystore path is required (--keystore)")
	}
	if a.cfg.Software.ContainerFormat() != software.FormatKeyStore {
		return fmt.Errorf("%s is not a keystore container path", path)
	}
	alias := a.cfg.Software.Alias

	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpImport, "software", start, err, importErrorTypes)
	}()

	key, chain, err := a.readIdentity(opts)
	if err != nil {
		return err
	}

	ks, err := keystore.Load(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		ks = keystore.New()
	case err != nil:
		return err
	}
	if opts.force {
		if err := ks.Delete(alias); err == nil {
			a.log().Warnf("replacing entry %q in %s", alias, path)
		}
	}

	pwd, err := password.NewSupplier(a.flags.Password, config.EnvPassword).Password("Container password")
	if err != nil {
		return err
	}
	defer pwd.Clear()
	secret := pwd.Bytes()
	defer clear(secret)

	if err := ks.Add(alias, key, chain, secret); err != nil {
		return err
	}
	if err := ks.Save(path); err != nil {
		return fmt.Errorf("failed to save keystore: %w", err)
	}
	a.log().Info("keystore entry added",
		"keystore", path,
		"alias", alias,
		"algorithm", keystore.KeyAlgorithm(key))

	return a.printer(a.out).PrintSuccess(
		fmt.Sprintf("Added %s (%s) to %s", alias, chain[0].Subject, path))
}

// readIdentity loads the private key and chain to import
func (a *app) readIdentity(opts *importOptions) (any, []*x509.Certificate, error) {
	switch {
	case opts.pkcs12File != "" && opts.keyFile != "":
		return nil, nil, errors.New("--key and --pkcs12 are mutually exclusive")

	case opts.pkcs12File != "":
		// #nosec G304 - Import path is provided by the user
		data, err := os.ReadFile(opts.pkcs12File)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read PKCS#12 file: %w", err)
		}
		secret, err := a.keyPassword(opts)
		if err != nil {
			return nil, nil, err
		}
		return keystore.ImportPKCS12(data, secret)

	case opts.keyFile != "":
		if opts.chainFile == "" {
			return nil, nil, errors.New("a certificate chain is required with --key (--chain)")
		}
		// #nosec G304
		keyPEM, err := os.ReadFile(opts.keyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read key: %w", err)
		}
		defer clear(keyPEM)
		// #nosec G304
		chainPEM, err := os.ReadFile(opts.chainFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read chain: %w", err)
		}
		chain, err := keystore.ParsePEMCertificates(chainPEM)
		if err != nil {
			return nil, nil, err
		}

		var secret []byte
		if bytes.Contains(keyPEM, []byte("ENCRYPTED PRIVATE KEY")) {
			s, err := a.keyPassword(opts)
			if err != nil {
				return nil, nil, err
			}
			secret = []byte(s)
			defer clear(secret)
		}
		key, err := keystore.ParsePEMPrivateKey(keyPEM, secret)
		if err != nil {
			return nil, nil, err
		}
		return key, chain, nil
	}
	return nil, nil, errors.New("a key is required (--key or --pkcs12)")
}

func (a *app) keyPassword(opts *importOptions) (string, error) {
	pwd, err := password.NewSupplier(opts.keyPassword, EnvKeyPassword).Password("Key password")
	if err != nil {
		return "", err
	}
	defer pwd.Clear()
	return pwd.String()
}

func (a *app) newKeyStoreListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the entries of a keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Software.Path
			if path == "" {
				return errors.New("a keystore path is required (--keystore)")
			}
			ks, err := keystore.Load(path)
			if err != nil {
				return err
			}
			entries := make([]KeyStoreEntry, 0, len(ks.Entries))
			for _, e := range ks.Entries {
				chain, err := ks.Chain(e.Alias)
				if err != nil {
					return err
				}
				entries = append(entries, KeyStoreEntry{
					Alias:       e.Alias,
					Algorithm:   e.Algorithm,
					Created:     e.Created,
					Certificate: certificateInfo(chain[0]),
					ChainLength: len(chain),
				})
			}
			return a.printer(a.out).PrintKeyStore(path, entries)
		},
	}
}

func (a *app) newKeyStoreDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete",
		Short: "Remove the entry named by --alias from a keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Software.Path
			if path == "" {
				return errors.New("a keystore path is required (--keystore)")
			}
			ks, err := keystore.Load(path)
			if err != nil {
				return err
			}
			if err := ks.Delete(a.cfg.Software.Alias); err != nil {
				return err
			}
			if err := ks.Save(path); err != nil {
				return fmt.Errorf("failed to save keystore: %w", err)
			}
			return a.printer(a.out).PrintSuccess(
				fmt.Sprintf("Removed %s from %s", a.cfg.Software.Alias, path))
		},
	}
}
