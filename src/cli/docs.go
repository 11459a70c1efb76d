// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package cli provides the command-line interface of the AdES chain validator.
// It implements Cobra commands that validate a certificate, a CMS/CAdES
// signature or the certificates served by a TLS endpoint, and print the
// processed chain as an ASCII tree, a markdown table or JSON.
// Trust anchors, intermediates and network behaviour come from the
// configuration file and can be overridden with flags.
package cli
