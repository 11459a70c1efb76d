// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509chain builds and evaluates the trust graph of a signature or of
// standalone [X.509] certificates.
//
// A [Verifier] holds what validation runs share: trust anchors, adjunct
// certificates, the remote trust source, the AIA fetcher and the online
// [OCSP] and [CRL] sources. A [ValidationContext] is one run. It walks the
// graph with an explicit worklist:
//   - each token is visited once, its issuer is resolved from the cached
//     issuer, the pool, the remote trust source, then AIA
//   - the issuer chain settles before the token's revocation check runs
//   - revocation is resolved online first, then from the data embedded in the
//     signature, and an embedded answer contradicting the online one only
//     adds a note
//   - accepted CRLs and OCSP responses join the walk so their signers are
//     resolved too, unless [Policy.ClimbRevocationSigners] is off
//
// Missing issuers and missing revocation data never fail a run; they are
// recorded as notes and as [StatusUndetermined] outcomes for the level
// analysis to judge.
//
// [X.509]: https://grokipedia.com/page/X.509
// [OCSP]: https://grokipedia.com/page/Online_Certificate_Status_Protocol
// [CRL]: https://grokipedia.com/page/Certificate_revocation_list
package x509chain
