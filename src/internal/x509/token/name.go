// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package token

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// CanonicalName turns a DER distinguished name into a comparison key.
//
// Attribute types are kept as dotted OIDs, string values are NFKC normalized,
// case folded and whitespace collapsed, and the attributes inside a
// multi-valued RDN are sorted. Two names that differ only in string encoding
// (PrintableString vs UTF8String) or letter case map to the same key.
//
// Input that does not parse as a name falls back to its hex encoding so it
// still compares by bytes.
func CanonicalName(raw []byte) string {
	var rdns pkix.RDNSequence
	rest, err := asn1.Unmarshal(raw, &rdns)
	if err != nil || len(rest) > 0 {
		return "raw:" + hex.EncodeToString(raw)
	}

	parts := make([]string, 0, len(rdns))
	for _, rdn := range rdns {
		atvs := make([]string, 0, len(rdn))
		for _, atv := range rdn {
			atvs = append(atvs, atv.Type.String()+"="+canonicalValue(atv.Value))
		}
		slices.Sort(atvs)
		parts = append(parts, strings.Join(atvs, "+"))
	}
	return strings.Join(parts, ",")
}

func canonicalValue(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("#%v", v)
	}
	s = folder.String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(s), " ")
}
