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
	"fmt"
	"strings"
	"time"

	p11 "github.com/miekg/pkcs11"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-signer/pkg/metrics"
	"github.com/jeremyhahn/go-signer/pkg/token"
)

func (a *app) newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect PKCS#11 tokens",
		Long: `Inspect the tokens reachable through the PKCS#11 library given with
--library.`,
	}
	cmd.AddCommand(a.newTokenCertsCmd())
	cmd.AddCommand(a.newTokenInfoCmd())
	return cmd
}

func (a *app) newTokenCertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "certs",
		Short: "List the certificates stored on a token",
		Long: `Log in to the selected token and list every certificate object with its
CKA_ID. The id selects the signer with --cert-id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listTokenCertificates()
		},
	}
}

func (a *app) listTokenCertificates() (err error) {
	session, err := a.openSession()
	if err != nil {
		return err
	}
	defer func() {
		a.log().MaybeError(session.Close())
	}()

	start := time.Now()
	objects, err := session.Certificates()
	metrics.Observe(metrics.OpChain, "pkcs11", start, err, nil)
	if err != nil {
		return err
	}
	metrics.SetCertificatesTotal("pkcs11", len(objects))

	certs := make([]TokenCertificate, 0, len(objects))
	for _, obj := range objects {
		tc := TokenCertificate{
			ID:    hex.EncodeToString(obj.ID),
			Label: obj.Label,
		}
		cert, err := x509.ParseCertificate(obj.Value)
		if err != nil {
			tc.Error = err.Error()
		} else {
			tc.CertificateInfo = certificateInfo(cert)
		}
		certs = append(certs, tc)
	}
	return a.printer(a.out).PrintTokenCertificates(certs)
}

func (a *app) newTokenInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "List the slots with a token present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listTokens()
		},
	}
}

// listTokens reads the token descriptions without opening a session
func (a *app) listTokens() error {
	module, err := a.module()
	if err != nil {
		return err
	}
	if err := module.Initialize(); err != nil {
		if rv, ok := token.ReturnValue(err); !ok || rv != p11.CKR_CRYPTOKI_ALREADY_INITIALIZED {
			module.Destroy()
			return token.NewOperationError("C_Initialize", err)
		}
	}
	defer func() {
		if err := module.Finalize(); err != nil {
			a.log().Warnf("C_Finalize: %v", err)
		}
		module.Destroy()
	}()

	slots, err := module.GetSlotList(true)
	if err != nil {
		return token.NewOperationError("C_GetSlotList", err)
	}
	tokens := make([]TokenInfo, 0, len(slots))
	for _, slot := range slots {
		info, err := module.GetTokenInfo(slot)
		if err != nil {
			return token.NewOperationError(fmt.Sprintf("C_GetTokenInfo(%d)", slot), err)
		}
		tokens = append(tokens, TokenInfo{
			Slot:         slot,
			Label:        strings.TrimSpace(info.Label),
			Manufacturer: strings.TrimSpace(info.ManufacturerID),
			Model:        strings.TrimSpace(info.Model),
			SerialNumber: strings.TrimSpace(info.SerialNumber),
		})
	}
	return a.printer(a.out).PrintTokenInfo(tokens)
}
