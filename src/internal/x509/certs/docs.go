// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package x509certs decodes and encodes the [X.509] artifacts consumed by a
// validation run: certificates, CRLs and [PKCS7] certs-only bundles, in [PEM]
// or DER form. Trust sources, the AIA fetcher and the CLI all decode through
// a [Codec].
//
// [X.509]: https://grokipedia.com/page/X.509
// [PKCS7]: https://grokipedia.com/page/PKCS_7
// [PEM]: https://grokipedia.com/page/PEM#privacy-enhanced-mail
package x509certs
