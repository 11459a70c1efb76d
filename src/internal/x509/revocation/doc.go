// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package revocation locates and verifies CRLs and OCSP responses for a
// certificate and its issuer.
//
// Sources only find data: [OnlineCRLSource] and [OnlineOCSPSource] fetch it
// from the URLs a certificate advertises, [ListCRLSource] and
// [ListOCSPSource] search material embedded in a signature. Resolvers turn a
// source result into a trusted [token.RevocationToken]:
//
//   - [CRLResolver] accepts a CRL only when its signature verifies against
//     the issuer and the issuer may sign CRLs.
//   - [OCSPResolver] accepts a response signed by the issuer itself or by a
//     delegated responder embedded in the response and issued by the issuer.
//   - [CompositeResolver] asks OCSP first and falls back to CRL.
//
// A resolver returns nil when it has no usable result. The reason is recorded
// as a note on the certificate token; absence of data is never treated as a
// good status.
//
// [ResponseCache] keeps downloaded CRLs keyed by URL until their nextUpdate
// passes, evicting the least recently used entry when full.
package revocation
