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
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-signer/pkg/algorithm"
	"github.com/jeremyhahn/go-signer/pkg/digest"
	"github.com/jeremyhahn/go-signer/pkg/metrics"
)

var digestErrorTypes = metrics.ErrorClassifier{
	algorithm.ErrUnsupportedAlgorithm: "unsupported_algorithm",
	digest.ErrNoSoftwareHash:          "no_software_hash",
	digest.ErrFinalized:               "finalized",
}

func (a *app) newDigestCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "digest <input>",
		Short: "Compute the digest of a file with the configured backend",
		Long: `Stream a file through the digest engine of the configured backend and
print the hex digest. A PKCS#11 backend computes the digest on the token.
The algorithm defaults to the one the signer certificate signs with; the
output can be passed to verify --checksum.

Examples:
  signer digest --keystore signer.yaml document.xml
  signer digest --backend pkcs11 --library /usr/lib/librtpkcs11ecp.so \
    --cert-id a1b2 --algorithm GOSTR3411_2012_512 document.xml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.digest(args[0], name)
		},
	}
	cmd.Flags().StringVar(&name, "algorithm", "", "digest algorithm name (see 'signer algorithms')")
	return cmd
}

func (a *app) digest(input, name string) (err error) {
	// #nosec G304 - Input path is provided by the user
	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	defer f.Close()

	b, err := a.openBackend(a)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", a.cfg.Backend, err)
	}
	defer func() {
		a.log().MaybeError(b.Close())
	}()

	alg := b.SignatureAlgorithm().Digest
	if name != "" {
		if alg, err = algorithm.DigestByName(name); err != nil {
			return err
		}
	}

	start := time.Now()
	defer func() {
		metrics.Observe(metrics.OpDigest, b.Type().String(), start, err, digestErrorTypes)
	}()
	engine, err := b.DigestEngine(alg.Identifier())
	if err != nil {
		return err
	}
	n, err := io.Copy(engine, f)
	if err != nil {
		return fmt.Errorf("failed to digest %s: %w", input, err)
	}
	sum, err := engine.Sum()
	if err != nil {
		return err
	}
	metrics.RecordDigestBytes(alg.Name, b.Type().String(), int(n))
	a.log().Infof("digested %d bytes of %s with %s", n, input, alg)

	return a.printer(a.out).PrintDigestResult(&DigestResult{
		Input:     input,
		Algorithm: alg.Name,
		Backend:   b.Type().String(),
		Digest:    hex.EncodeToString(sum),
	})
}

func (a *app) newAlgorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the supported signature and digest algorithms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printer(a.out).PrintAlgorithms(algorithmInfos())
		},
	}
}

func algorithmInfos() *AlgorithmList {
	list := &AlgorithmList{}
	for _, s := range algorithm.Signatures() {
		list.Signatures = append(list.Signatures, SignatureInfo{
			Name:      s.Name,
			OID:       s.OID.String(),
			Mechanism: fmt.Sprintf("0x%x", s.Mechanism),
			Digest:    s.Digest.Name,
		})
	}
	for _, d := range algorithm.Digests() {
		_, err := digest.NewHash(d)
		info := DigestAlgorithmInfo{
			Name:     d.Name,
			OID:      d.OID.String(),
			Size:     d.Size,
			Token:    d.HasMechanism(),
			Software: err == nil,
		}
		if d.HasMechanism() {
			info.Mechanism = fmt.Sprintf("0x%x", d.Mechanism)
		}
		list.Digests = append(list.Digests, info)
	}
	return list
}
