// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

// Package level derives the ETSI AdES level of a signature (BES, EPES, T, C,
// X, XL, A) from the output of a validation context.
//
// Each level is checked separately and the report keeps the reasons a level
// was missed. The reached level is the highest one whose own checks and the
// checks of every level below it passed. EPES is a qualifier of BES: it is
// reported only when the signature policy is present and T is not reached,
// and its absence does not block T and above.
package level
