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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(strings.ToLower(format)),
		writer: writer,
	}
}

// CertificateInfo is the printable summary of a certificate
type CertificateInfo struct {
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serial_number"`
	NotBefore          time.Time `json:"not_before"`
	NotAfter           time.Time `json:"not_after"`
	SignatureAlgorithm string    `json:"signature_algorithm,omitempty"`
}

func certificateInfo(cert *x509.Certificate) CertificateInfo {
	info := CertificateInfo{
		Subject:   cert.Subject.String(),
		Issuer:    cert.Issuer.String(),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
	}
	if cert.SerialNumber != nil {
		info.SerialNumber = fmt.Sprintf("%X", cert.SerialNumber)
	}
	if cert.SignatureAlgorithm != x509.UnknownSignatureAlgorithm {
		info.SignatureAlgorithm = cert.SignatureAlgorithm.String()
	}
	return info
}

func certificateInfos(chain []*x509.Certificate) []CertificateInfo {
	infos := make([]CertificateInfo, len(chain))
	for i, cert := range chain {
		infos[i] = certificateInfo(cert)
	}
	return infos
}

func (p *Printer) printCertificateText(indent string, info CertificateInfo) {
	fmt.Fprintf(p.writer, "%sSubject: %s\n", indent, info.Subject)
	fmt.Fprintf(p.writer, "%sIssuer:  %s\n", indent, info.Issuer)
	fmt.Fprintf(p.writer, "%sSerial:  %s\n", indent, info.SerialNumber)
	fmt.Fprintf(p.writer, "%sValid:   %s - %s\n", indent,
		info.NotBefore.Format(time.DateOnly), info.NotAfter.Format(time.DateOnly))
}

func (p *Printer) printChainText(chain []CertificateInfo) {
	fmt.Fprintf(p.writer, "Certificate chain (%d):\n", len(chain))
	for i, info := range chain {
		fmt.Fprintf(p.writer, "  [%d] %s\n", i, info.Subject)
	}
}

// SignResult describes a completed signing run
type SignResult struct {
	OperationID string `json:"operation_id"`
	Input       string `json:"input"`
	Signature   string `json:"signature"`
	ChainFile   string `json:"chain_file,omitempty"`
	Backend     string `json:"backend"`
	Algorithm   string `json:"algorithm"`
	Digest      string `json:"digest"`
	Verified    bool   `json:"verified"`

	Certificate CertificateInfo   `json:"certificate"`
	Chain       []CertificateInfo `json:"chain"`
}

// PrintSignResult prints the outcome of a signing run
func (p *Printer) PrintSignResult(r *SignResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		fmt.Fprintln(p.writer, "Certificate:")
		p.printCertificateText("  ", r.Certificate)
		p.printChainText(r.Chain)
		fmt.Fprintf(p.writer, "Signature: %s\n", r.Signature)
		if r.ChainFile != "" {
			fmt.Fprintf(p.writer, "Chain:     %s\n", r.ChainFile)
		}
		fmt.Fprintf(p.writer, "Algorithm: %s (%s)\n", r.Algorithm, r.Digest)
		fmt.Fprintf(p.writer, "Operation: %s\n", r.OperationID)
		fmt.Fprintf(p.writer, "Sig: %s\n", okOrFailed(r.Verified))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// VerifyResult describes a signature check
type VerifyResult struct {
	Input     string `json:"input"`
	Signature string `json:"signature"`
	Subject   string `json:"subject"`
	Algorithm string `json:"algorithm"`
	Valid     bool   `json:"valid"`
	Error     string `json:"error,omitempty"`
}

// PrintVerifyResult prints the outcome of a verification
func (p *Printer) PrintVerifyResult(r *VerifyResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Signer:    %s\n", r.Subject)
		fmt.Fprintf(p.writer, "Algorithm: %s\n", r.Algorithm)
		fmt.Fprintf(p.writer, "Sig: %s\n", okOrFailed(r.Valid))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// TokenCertificate is one certificate object found on a token
type TokenCertificate struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	CertificateInfo
	Error string `json:"error,omitempty"`
}

// PrintTokenCertificates prints the certificates stored on a token
func (p *Printer) PrintTokenCertificates(certs []TokenCertificate) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"certificates": certs,
		})
	case OutputFormatText:
		if len(certs) == 0 {
			fmt.Fprintln(p.writer, "No certificates found")
			return nil
		}
		for i, c := range certs {
			if i > 0 {
				fmt.Fprintln(p.writer)
			}
			fmt.Fprintf(p.writer, "ID: %s (%s)\n", c.ID, c.Label)
			if c.Error != "" {
				fmt.Fprintf(p.writer, "  Error: %s\n", c.Error)
				continue
			}
			p.printCertificateText("  ", c.CertificateInfo)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// TokenInfo describes the token in one slot
type TokenInfo struct {
	Slot         uint   `json:"slot"`
	Label        string `json:"label"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number"`
}

// PrintTokenInfo prints the tokens present in the library's slots
func (p *Printer) PrintTokenInfo(tokens []TokenInfo) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"tokens": tokens,
		})
	case OutputFormatText:
		if len(tokens) == 0 {
			fmt.Fprintln(p.writer, "No tokens present")
			return nil
		}
		fmt.Fprintf(p.writer, "%-6s %-32s %-16s %-16s %s\n", "SLOT", "LABEL", "MODEL", "SERIAL", "MANUFACTURER")
		fmt.Fprintln(p.writer, strings.Repeat("-", 90))
		for _, t := range tokens {
			fmt.Fprintf(p.writer, "%-6d %-32s %-16s %-16s %s\n",
				t.Slot, t.Label, t.Model, t.SerialNumber, t.Manufacturer)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// KeyStoreEntry describes one identity in a keystore container
type KeyStoreEntry struct {
	Alias       string          `json:"alias"`
	Algorithm   string          `json:"algorithm"`
	Created     time.Time       `json:"created"`
	Certificate CertificateInfo `json:"certificate"`
	ChainLength int             `json:"chain_length"`
}

// PrintKeyStore prints the entries of a keystore container
func (p *Printer) PrintKeyStore(path string, entries []KeyStoreEntry) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"keystore": path,
			"entries":  entries,
		})
	case OutputFormatText:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No entries found")
			return nil
		}
		fmt.Fprintf(p.writer, "Keystore: %s\n", path)
		for _, e := range entries {
			fmt.Fprintf(p.writer, "  - %s (%s, created %s, chain of %d)\n",
				e.Alias, e.Algorithm, e.Created.Format(time.RFC3339), e.ChainLength)
			fmt.Fprintf(p.writer, "    %s\n", e.Certificate.Subject)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// DigestResult is the outcome of the digest command
type DigestResult struct {
	Input     string `json:"input"`
	Algorithm string `json:"algorithm"`
	Backend   string `json:"backend"`
	Digest    string `json:"digest"`
}

// PrintDigestResult prints a digest in the sha256sum layout for text output
func (p *Printer) PrintDigestResult(r *DigestResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%s  %s\n", r.Digest, r.Input)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// SignatureInfo describes a registered signature algorithm
type SignatureInfo struct {
	Name      string `json:"name"`
	OID       string `json:"oid"`
	Mechanism string `json:"mechanism"`
	Digest    string `json:"digest"`
}

// DigestAlgorithmInfo describes a registered digest algorithm and where it
// can be computed
type DigestAlgorithmInfo struct {
	Name      string `json:"name"`
	OID       string `json:"oid"`
	Mechanism string `json:"mechanism,omitempty"`
	Size      int    `json:"size"`
	Token     bool   `json:"token"`
	Software  bool   `json:"software"`
}

// AlgorithmList is the registry as printed by the algorithms command
type AlgorithmList struct {
	Signatures []SignatureInfo       `json:"signatures"`
	Digests    []DigestAlgorithmInfo `json:"digests"`
}

// PrintAlgorithms prints the signature and digest tables
func (p *Printer) PrintAlgorithms(list *AlgorithmList) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(list)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%-24s %-26s %-12s %s\n", "SIGNATURE", "OID", "MECHANISM", "DIGEST")
		fmt.Fprintln(p.writer, strings.Repeat("-", 84))
		for _, s := range list.Signatures {
			fmt.Fprintf(p.writer, "%-24s %-26s %-12s %s\n", s.Name, s.OID, s.Mechanism, s.Digest)
		}
		fmt.Fprintln(p.writer)
		fmt.Fprintf(p.writer, "%-20s %-26s %-12s %-5s %-6s %s\n", "DIGEST", "OID", "MECHANISM", "SIZE", "TOKEN", "SOFTWARE")
		fmt.Fprintln(p.writer, strings.Repeat("-", 84))
		for _, d := range list.Digests {
			mech := d.Mechanism
			if mech == "" {
				mech = "-"
			}
			fmt.Fprintf(p.writer, "%-20s %-26s %-12s %-5d %-6s %s\n",
				d.Name, d.OID, mech, d.Size, yesNo(d.Token), yesNo(d.Software))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func okOrFailed(ok bool) string {
	if ok {
		return "OK"
	}
	return "FAILED"
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
