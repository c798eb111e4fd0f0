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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-signer/pkg/keystore"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/verification"
)

func (a *app) newSignCmd() *cobra.Command {
	var (
		sigOut   string
		chainOut string
	)
	cmd := &cobra.Command{
		Use:   "sign <input>",
		Short: "Sign a file",
		Long: `Sign a file with the configured backend and write the raw signature
next to it as <input>.sig. The signature is checked against the signer
certificate before it is written.

Examples:
  signer sign --keystore signer.yaml --alias signer document.xml
  signer sign --backend pkcs11 --library /usr/lib/librtpkcs11ecp.so \
    --cert-id a1b2 --chain-out chain.pem document.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if sigOut == "" {
				sigOut = input + ".sig"
			}
			return a.sign(input, sigOut, chainOut)
		},
	}
	cmd.Flags().StringVar(&sigOut, "out", "", "signature output file (default <input>.sig)")
	cmd.Flags().StringVar(&chainOut, "chain-out", "", "write the signer certificate chain to this PEM file")
	return cmd
}

func (a *app) sign(input, sigOut, chainOut string) (err error) {
	// #nosec G304 - Input path is provided by the user
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	b, err := a.openBackend(a)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", a.cfg.Backend, err)
	}
	defer func() {
		a.log().MaybeError(b.Close())
	}()

	cert, err := b.Certificate()
	if err != nil {
		return err
	}
	chain, err := b.CertificateChain()
	if err != nil {
		return fmt.Errorf("failed to resolve certificate chain: %w", err)
	}
	alg := b.SignatureAlgorithm()

	sig, err := b.SignRaw(data)
	if err != nil {
		return fmt.Errorf("failed to sign %s: %w", input, err)
	}

	start := time.Now()
	verifyErr := verification.NewVerifier(nil).VerifyData(cert, data, sig,
		&verification.VerifyOpts{Algorithm: alg})
	metrics.Observe(metrics.OpVerify, b.Type().String(), start, verifyErr, verifyErrorTypes)
	if verifyErr != nil {
		return fmt.Errorf("signature failed self-verification: %w", verifyErr)
	}

	if err := os.WriteFile(sigOut, sig, 0644); err != nil { // #nosec G306 - signatures are public
		return fmt.Errorf("failed to write signature: %w", err)
	}
	if chainOut != "" {
		if err := os.WriteFile(chainOut, keystore.EncodePEMCertificates(chain), 0644); err != nil { // #nosec G306
			return fmt.Errorf("failed to write chain: %w", err)
		}
	}
	a.log().Info("signed",
		"input", input,
		"signature", sigOut,
		"algorithm", alg.Name,
		"bytes", len(data))

	return a.printer(a.out).PrintSignResult(&SignResult{
		OperationID: a.opID,
		Input:       input,
		Signature:   sigOut,
		ChainFile:   chainOut,
		Backend:     b.Type().String(),
		Algorithm:   alg.Name,
		Digest:      alg.Digest.Name,
		Verified:    true,
		Certificate: certificateInfo(cert),
		Chain:       certificateInfos(chain),
	})
}
