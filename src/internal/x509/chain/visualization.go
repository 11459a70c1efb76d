// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package x509chain

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// RenderASCIITree renders the chain of cert, leaf first, with the revocation
// data accepted for each certificate as child nodes.
//
// Parameters:
//   - cert: Token returned by ValidateCertificate or ValidateSignature
//
// Returns:
//   - string: ASCII tree representation of the chain
func (c *ValidationContext) RenderASCIITree(cert *token.CertificateToken) string {
	chain := c.Chain(cert)
	if len(chain) == 0 {
		return "No certificates in chain"
	}

	var result strings.Builder
	for i, tok := range chain {
		isLast := i == len(chain)-1

		connector, indent := "├── ", "│   "
		if isLast {
			connector, indent = "└── ", "    "
		}

		status := c.statusString(tok)
		icon := "✓"
		if !statusOK(status) {
			icon = "✗"
		}

		fmt.Fprintf(&result, "%s[%s] %s (%s) %s\n", connector, icon, displayName(tok.Certificate()), role(tok), status)

		if out := c.Outcome(tok); out != nil {
			for _, rev := range []token.RevocationToken{out.Revocation, out.Embedded} {
				if rev == nil {
					continue
				}
				fmt.Fprintf(&result, "%s└── %s %s, %s\n", indent, rev.Origin(), rev.Kind(), rev.Status())
			}
		}
		if isLast && tok.Issuer() == nil {
			fmt.Fprintf(&result, "%s└── [?] issuer not found\n", indent)
		}
	}

	return result.String()
}

func statusOK(status string) bool {
	switch status {
	case StatusTrusted.String(), StatusSelfSigned.String(), StatusGood.String(), StatusNotApplicable.String():
		return true
	}
	return false
}

func (c *ValidationContext) statusString(tok *token.CertificateToken) string {
	if out := c.Outcome(tok); out != nil {
		return out.Status.String()
	}
	return "not processed"
}

// RenderTable renders every processed certificate as a markdown table.
//
// Thread Safety: Not safe for use while the context is running.
func (c *ValidationContext) RenderTable() string {
	certs := c.ProcessedCertificates()
	if len(certs) == 0 {
		return "No certificates to display"
	}

	var buf strings.Builder
	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewMarkdown(tw.Rendition{Streaming: true})),
	)

	table.Header([]string{"🔢 #", "🏷️ Role", "📛 Subject", "🏢 Issuer", "📅 Valid Until", "🔐 Key", "📥 Source", "✅ Status"})

	rows := make([][]string, 0, len(certs))
	for i, tok := range certs {
		cert := tok.Certificate()
		issuer := "not found"
		if is := tok.Issuer(); is != nil {
			issuer = displayName(is.Certificate())
		}
		_, keyDesc := keyInfo(cert)

		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			role(tok),
			displayName(cert),
			issuer,
			cert.NotAfter.Format("2006-01-02"),
			keyDesc,
			sources(tok),
			c.statusString(tok),
		})
	}

	table.Bulk(rows)
	table.Render()
	return buf.String()
}

func sources(tok *token.CertificateToken) string {
	var names []string
	for _, s := range tok.Sources() {
		names = append(names, s.String())
	}
	return strings.Join(names, ", ")
}

// Report is the JSON form of a validation run.
type Report struct {
	RunID         string             `json:"runId"`
	Timestamp     string             `json:"timestamp"`
	Target        string             `json:"target,omitempty"`
	ChainComplete bool               `json:"chainComplete"`
	Certificates  []CertificateEntry `json:"certificates"`
	Relationships []Relationship     `json:"relationships"`
	Revocations   []RevocationEntry  `json:"revocations"`
	Timestamps    []TimestampEntry   `json:"timestamps,omitempty"`
}

// CertificateEntry describes one processed certificate.
type CertificateEntry struct {
	Index              int       `json:"index"`
	ID                 string    `json:"id"`
	Role               string    `json:"role"`
	Subject            string    `json:"subject"`
	Issuer             string    `json:"issuer"`
	SerialNumber       string    `json:"serialNumber"`
	SignatureAlgorithm string    `json:"signatureAlgorithm"`
	PublicKeyAlgorithm string    `json:"publicKeyAlgorithm"`
	KeySize            int       `json:"keySize"`
	NotBefore          time.Time `json:"notBefore"`
	NotAfter           time.Time `json:"notAfter"`
	IsCA               bool      `json:"isCA"`
	Sources            []string  `json:"sources"`
	Status             string    `json:"status"`
	IssuerMethod       string    `json:"issuerMethod,omitempty"`
	RevocationAttempts int       `json:"revocationAttempts"`
	Notes              []string  `json:"notes,omitempty"`
}

// Relationship links two entries of [Report.Certificates] by index.
type Relationship struct {
	FromIndex int    `json:"fromIndex"`
	ToIndex   int    `json:"toIndex"`
	Type      string `json:"type"`
}

// RevocationEntry describes one accepted CRL or OCSP response.
type RevocationEntry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Origin     string    `json:"origin"`
	Status     string    `json:"status"`
	Serial     string    `json:"serial,omitempty"`
	RevokedAt  time.Time `json:"revokedAt,omitzero"`
	Reason     string    `json:"reason,omitempty"`
	ProducedAt time.Time `json:"producedAt,omitzero"`
	NextUpdate time.Time `json:"nextUpdate,omitzero"`
	URL        string    `json:"url,omitempty"`
	Signer     string    `json:"signer,omitempty"`
}

// TimestampEntry describes one processed timestamp.
type TimestampEntry struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	GenTime time.Time `json:"genTime"`
	Imprint string    `json:"imprint"`
	Signer  string    `json:"signer,omitempty"`
	Notes   []string  `json:"notes,omitempty"`
}

// Report builds the structured form of the run. target may be nil.
func (c *ValidationContext) Report(target *token.CertificateToken) *Report {
	certs := c.ProcessedCertificates()
	r := &Report{
		RunID:         c.runID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Certificates:  make([]CertificateEntry, len(certs)),
		Relationships: []Relationship{},
		Revocations:   []RevocationEntry{},
	}
	if target != nil {
		r.Target = displayName(target.Certificate())
		r.ChainComplete = c.ChainComplete(target)
	}

	for i, tok := range certs {
		cert := tok.Certificate()
		algo, _ := keyInfo(cert)
		size, _ := keySize(cert)
		e := CertificateEntry{
			Index:              i,
			ID:                 tok.ID(),
			Role:               role(tok),
			Subject:            cert.Subject.String(),
			Issuer:             cert.Issuer.String(),
			SerialNumber:       cert.SerialNumber.String(),
			SignatureAlgorithm: cert.SignatureAlgorithm.String(),
			PublicKeyAlgorithm: algo,
			KeySize:            size,
			NotBefore:          cert.NotBefore,
			NotAfter:           cert.NotAfter,
			IsCA:               cert.IsCA,
			Status:             c.statusString(tok),
			Notes:              tok.Notes(),
		}
		for _, s := range tok.Sources() {
			e.Sources = append(e.Sources, s.String())
		}
		if out := c.Outcome(tok); out != nil {
			e.IssuerMethod = out.IssuerMethod
			e.RevocationAttempts = out.Attempts
		}
		r.Certificates[i] = e

		if is := tok.Issuer(); is != nil && is != tok {
			if j := slices.Index(certs, is); j >= 0 {
				r.Relationships = append(r.Relationships, Relationship{FromIndex: i, ToIndex: j, Type: "signed_by"})
			}
		}
	}

	for _, rev := range c.ProcessedRevocations() {
		e := RevocationEntry{
			ID:         rev.ID(),
			Kind:       rev.Kind().String(),
			Origin:     rev.Origin().String(),
			Status:     rev.Status().String(),
			RevokedAt:  rev.RevokedAt(),
			ProducedAt: rev.ProducedAt(),
			NextUpdate: rev.NextUpdate(),
			URL:        rev.URL(),
		}
		if sn := rev.TargetSerial(); sn != nil {
			e.Serial = sn.String()
		}
		if rev.Status() == token.StatusRevoked {
			e.Reason = rev.Reason().String()
		}
		if is := rev.Issuer(); is != nil {
			e.Signer = displayName(is.Certificate())
		}
		r.Revocations = append(r.Revocations, e)
	}

	for _, ts := range c.ProcessedTimestamps() {
		e := TimestampEntry{
			ID:      ts.ID(),
			Type:    ts.Type().String(),
			GenTime: ts.GenTime(),
			Imprint: ts.ImprintState().String(),
			Notes:   ts.Notes(),
		}
		if is := ts.Issuer(); is != nil {
			e.Signer = displayName(is.Certificate())
		}
		r.Timestamps = append(r.Timestamps, e)
	}
	return r
}

// ToVisualizationJSON returns [ValidationContext.Report] as indented JSON.
func (c *ValidationContext) ToVisualizationJSON(target *token.CertificateToken) ([]byte, error) {
	return json.MarshalIndent(c.Report(target), "", "  ")
}

// role describes the function of a certificate.
func role(tok *token.CertificateToken) string {
	cert := tok.Certificate()
	switch {
	case tok.IsTrusted():
		return "Trust Anchor"
	case tok.IsSelfSigned():
		return "Self-Signed Certificate"
	case cert.IsCA:
		return "Intermediate CA Certificate"
	case tok.IsOCSPSigning():
		return "OCSP Responder Certificate"
	case slices.Contains(cert.ExtKeyUsage, x509.ExtKeyUsageTimeStamping):
		return "Timestamping Authority Certificate"
	default:
		return "End-Entity Certificate"
	}
}

func displayName(cert *x509.Certificate) string {
	if cert.Subject.CommonName != "" {
		return cert.Subject.CommonName
	}
	return cert.Subject.String()
}

func keySize(cert *x509.Certificate) (int, bool) {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return pub.Size() * 8, true
	case *ecdsa.PublicKey:
		return pub.Curve.Params().BitSize, true
	case ed25519.PublicKey:
		return 256, true
	}
	return 0, false
}

func keyInfo(cert *x509.Certificate) (algo, desc string) {
	algo = cert.PublicKeyAlgorithm.String()
	size, ok := keySize(cert)
	if !ok {
		return algo, "unknown"
	}
	return algo, fmt.Sprintf("%d-bit %s", size, algo)
}
