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
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/keystore"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/verification"
)

var verifyErrorTypes = metrics.ErrorClassifier{
	verification.ErrSignatureVerification:     "signature_invalid",
	verification.ErrFileIntegrityCheckFailed:  "integrity",
	verification.ErrInvalidSignatureAlgorithm: "invalid_algorithm",
	algorithm.ErrUnsupportedAlgorithm:         "unsupported_algorithm",
}

// ErrSignatureInvalid is returned by verify when the signature does not
// match the input and certificate.
var ErrSignatureInvalid = errors.New("signature is not valid")

func (a *app) newVerifyCmd() *cobra.Command {
	var (
		sigFile  string
		checksum string
	)
	cmd := &cobra.Command{
		Use:   "verify <input>",
		Short: "Verify a detached raw signature",
		Long: `Verify the raw signature over a file against the signer certificate
given with --cert. The signature is read from <input>.sig unless
--signature is set. --checksum additionally compares the input digest with
a known hex value.

Examples:
  signer verify --cert signer.pem document.xml
  signer verify --cert signer.pem --signature document.sig document.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if sigFile == "" {
				sigFile = input + ".sig"
			}
			return a.verify(input, sigFile, checksum)
		},
	}
	cmd.Flags().StringVar(&sigFile, "signature", "", "signature file (default <input>.sig)")
	cmd.Flags().StringVar(&checksum, "checksum", "", "expected hex digest of the input")
	return cmd
}

func (a *app) verify(input, sigFile, checksum string) error {
	certFile := a.cfg.PKCS11.CertificateFile
	if certFile == "" {
		return errors.New("a signer certificate is required (--cert)")
	}
	cert, err := readCertificate(certFile)
	if err != nil {
		return err
	}
	// #nosec G304 - Paths are provided by the user
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	// #nosec G304
	sig, err := os.ReadFile(sigFile)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}

	alg, err := algorithm.ForCertificate(cert)
	if err != nil {
		return err
	}
	opts := &verification.VerifyOpts{Algorithm: alg}
	var checksums verification.Checksums
	if checksum != "" {
		if _, err := hex.DecodeString(checksum); err != nil {
			return fmt.Errorf("invalid checksum: %w", err)
		}
		checksums = verification.Checksums{input: checksum}
		opts.IntegrityCheck = true
		opts.BlobCN = []byte(input)
	}

	start := time.Now()
	verifyErr := verification.NewVerifier(checksums).VerifyData(cert, data, sig, opts)
	metrics.Observe(metrics.OpVerify, "file", start, verifyErr, verifyErrorTypes)

	result := &VerifyResult{
		Input:     input,
		Signature: sigFile,
		Subject:   cert.Subject.String(),
		Algorithm: alg.Name,
		Valid:     verifyErr == nil,
	}
	if verifyErr != nil {
		result.Error = verifyErr.Error()
		a.log().Debugf("verification of %s failed: %v", input, verifyErr)
	}
	if err := a.printer(a.out).PrintVerifyResult(result); err != nil {
		return err
	}
	if verifyErr != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, verifyErr)
	}
	return nil
}

// readCertificate loads the first certificate of a PEM or DER file
func readCertificate(path string) (*x509.Certificate, error) {
	// #nosec G304 - Certificate path is provided by the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	if certs, err := keystore.ParsePEMCertificates(data); err == nil {
		return certs[0], nil
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", path, err)
	}
	return cert, nil
}
