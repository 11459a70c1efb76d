// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package signature exposes an advanced electronic signature to the
// validation context through the [AdvancedSignature] interface.
//
// [CMSSignature] implements it for CMS SignedData with CAdES attributes:
// embedded certificates, certificate and revocation values, signature
// policy identifier and the content, signature, ES-C, refs-only and
// archive timestamps together with the bytes each of them covers.
package signature
