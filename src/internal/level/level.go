// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package level

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/signature"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

var (
	// ErrNilSignature is returned when Analyze receives no signature.
	ErrNilSignature = errors.New("level: signature is nil")
	// ErrNilContext is returned when Analyze receives no validation context.
	ErrNilContext = errors.New("level: validation context is nil")
	// ErrSignerNotProcessed is returned when the context never walked the
	// signing certificate, e.g. ValidateSignature was not run.
	ErrSignerNotProcessed = errors.New("level: signing certificate was not processed")
)

// Level is an AdES signature level.
type Level int

const (
	LevelNone Level = iota
	LevelBES
	LevelEPES
	LevelT
	LevelC
	LevelX
	LevelXL
	LevelA
)

func (l Level) String() string {
	switch l {
	case LevelBES:
		return "BES"
	case LevelEPES:
		return "EPES"
	case LevelT:
		return "T"
	case LevelC:
		return "C"
	case LevelX:
		return "X"
	case LevelXL:
		return "XL"
	case LevelA:
		return "A"
	default:
		return "none"
	}
}

// MarshalText encodes the level by name.
func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Check is the result for one level.
type Check struct {
	Level   Level    `json:"level"`
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
}

func (c *Check) fail(format string, args ...any) {
	c.Reasons = append(c.Reasons, fmt.Sprintf(format, args...))
}

// Report is the level analysis of one signature.
type Report struct {
	Level         Level               `json:"level"`
	Checks        []Check             `json:"checks"`
	Integrity     signature.Integrity `json:"integrity"`
	ChainComplete bool                `json:"chainComplete"`
	SignerStatus  string              `json:"signerStatus"`
	RunID         string              `json:"runId"`
}

// Check returns the check of l, or nil when it was not evaluated.
func (r *Report) Check(l Level) *Check {
	for i := range r.Checks {
		if r.Checks[i].Level == l {
			return &r.Checks[i]
		}
	}
	return nil
}

// Summary renders the reached level followed by one line per check.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "AdES level: %s\n", r.Level)
	for _, c := range r.Checks {
		icon := "✓"
		if !c.Passed {
			icon = "✗"
		}
		fmt.Fprintf(&b, "  [%s] %s", icon, c.Level)
		if len(c.Reasons) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(c.Reasons, "; "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// analyzer carries the state shared by the level checks.
type analyzer struct {
	sig    signature.AdvancedSignature
	vc     *x509chain.ValidationContext
	signer *token.CertificateToken
}

// Analyze computes the level reached by sig from the context that validated it.
//
// Parameters:
//   - sig: The signature
//   - vc: Context on which ValidateSignature ran for sig
//
// Returns:
//   - *Report: Reached level and per-level reasons
//   - error: [ErrNilSignature], [ErrNilContext] or [ErrSignerNotProcessed]
func Analyze(sig signature.AdvancedSignature, vc *x509chain.ValidationContext) (*Report, error) {
	if sig == nil {
		return nil, ErrNilSignature
	}
	if vc == nil {
		return nil, ErrNilContext
	}
	a := &analyzer{sig: sig, vc: vc, signer: findSigner(sig, vc)}
	if a.signer == nil {
		return nil, ErrSignerNotProcessed
	}

	r := &Report{
		Integrity:     sig.CheckIntegrity(),
		ChainComplete: vc.ChainComplete(a.signer),
		RunID:         vc.RunID(),
	}
	if out := vc.Outcome(a.signer); out != nil {
		r.SignerStatus = out.Status.String()
	}

	r.Checks = []Check{
		a.bes(r.Integrity),
		a.epes(),
		a.t(),
		a.c(),
		a.x(),
		a.xl(),
		a.archive(),
	}

	// EPES is a side branch; the ladder is BES, T, C, X, XL, A.
	for _, c := range r.Checks {
		if c.Level == LevelEPES {
			continue
		}
		if !c.Passed {
			break
		}
		r.Level = c.Level
	}
	if r.Level == LevelBES && r.Check(LevelEPES).Passed {
		r.Level = LevelEPES
	}
	return r, nil
}

func findSigner(sig signature.AdvancedSignature, vc *x509chain.ValidationContext) *token.CertificateToken {
	cert := sig.SigningCertificate()
	if cert == nil {
		return nil
	}
	for _, tok := range vc.ProcessedCertificates() {
		if bytes.Equal(tok.Certificate().Raw, cert.Raw) {
			return tok
		}
	}
	return nil
}

func (a *analyzer) bes(integrity signature.Integrity) Check {
	c := Check{Level: LevelBES}
	if !integrity.Intact() {
		c.fail("signature integrity: %s", integrity.Reason)
	}
	if !a.vc.ChainComplete(a.signer) {
		c.fail("certificate chain of %s does not reach a trust anchor", name(a.signer))
	}
	for _, cert := range a.vc.Chain(a.signer) {
		if out := a.vc.Outcome(cert); out != nil && out.Status == x509chain.StatusRevoked {
			c.fail("certificate %s is revoked", name(cert))
		}
	}
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) epes() Check {
	c := Check{Level: LevelEPES}
	if len(a.sig.PolicyID()) == 0 {
		c.fail("no signature policy identifier")
	}
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) t() Check {
	c := Check{Level: LevelT}
	a.requireTimestamp(&c, token.TimestampSignature)
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) c() Check {
	c := Check{Level: LevelC}
	props := a.sig.Properties()
	if !props.CertificateRefs {
		c.fail("no complete certificate references")
	}
	if !props.RevocationRefs {
		c.fail("no complete revocation references")
	}
	for _, cert := range a.checkedChain() {
		if out := a.vc.Outcome(cert); out == nil || out.Revocation == nil {
			c.fail("no revocation data for %s", name(cert))
		}
	}
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) x() Check {
	c := Check{Level: LevelX}
	if !a.hasValidTimestamp(token.TimestampSigAndRefs) && !a.hasValidTimestamp(token.TimestampRefsOnly) {
		c.fail("no valid timestamp over the references")
	}
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) xl() Check {
	c := Check{Level: LevelXL}
	props := a.sig.Properties()
	if !props.CertificateValues {
		c.fail("no certificate values")
	}
	if !props.RevocationValues {
		c.fail("no revocation values")
	}
	for _, cert := range a.checkedChain() {
		if !embeddedRevocation(a.vc.Outcome(cert)) {
			c.fail("revocation data for %s is not embedded", name(cert))
		}
	}
	c.Passed = len(c.Reasons) == 0
	return c
}

func (a *analyzer) archive() Check {
	c := Check{Level: LevelA}
	a.requireTimestamp(&c, token.TimestampArchive)
	c.Passed = len(c.Reasons) == 0
	return c
}

func name(tok *token.CertificateToken) string {
	if cn := tok.Certificate().Subject.CommonName; cn != "" {
		return cn
	}
	return tok.Certificate().Subject.String()
}

func embeddedRevocation(out *x509chain.Outcome) bool {
	if out == nil {
		return false
	}
	if out.Revocation != nil && out.Revocation.Origin() == token.OriginEmbedded {
		return true
	}
	return out.Embedded != nil
}

// checkedChain returns the certificates of the signer chain whose status
// needed revocation data.
func (a *analyzer) checkedChain() []*token.CertificateToken {
	var out []*token.CertificateToken
	for _, cert := range a.vc.Chain(a.signer) {
		if o := a.vc.Outcome(cert); o != nil && o.Status.Terminal() {
			continue
		}
		out = append(out, cert)
	}
	return out
}

func (a *analyzer) requireTimestamp(c *Check, typ token.TimestampType) {
	found := false
	for _, ts := range a.vc.ProcessedTimestamps() {
		if ts.Type() != typ {
			continue
		}
		found = true
		if reason := a.timestampProblem(ts); reason != "" {
			c.fail("%s timestamp %s: %s", typ, ts.ID()[:8], reason)
		}
	}
	if !found {
		c.fail("no %s timestamp", typ)
	}
}

func (a *analyzer) hasValidTimestamp(typ token.TimestampType) bool {
	for _, ts := range a.vc.ProcessedTimestamps() {
		if ts.Type() == typ && a.timestampProblem(ts) == "" {
			return true
		}
	}
	return false
}

func (a *analyzer) timestampProblem(ts *token.TimestampToken) string {
	switch {
	case ts.ImprintState() != token.ImprintIntact:
		return "message imprint " + ts.ImprintState().String()
	case ts.Issuer() == nil:
		return "signer not found"
	case !a.vc.ChainComplete(ts.Issuer()):
		return "signer chain does not reach a trust anchor"
	}
	if out := a.vc.Outcome(ts.Issuer()); out != nil && out.Status == x509chain.StatusRevoked {
		return "signer certificate revoked"
	}
	return ""
}
