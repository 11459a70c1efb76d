// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/level"
	x509chain "github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/chain"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/x509/token"
)

// jsonOutput is the document printed by --json.
type jsonOutput struct {
	Validation *x509chain.Report `json:"validation"`
	Level      *level.Report     `json:"level,omitempty"`
}

// print writes the run in the format chosen by the flags.
func (o *options) print(cmd *cobra.Command, vc *x509chain.ValidationContext, tok *token.CertificateToken, lr *level.Report) error {
	out := cmd.OutOrStdout()
	switch {
	case o.json:
		data, err := json.MarshalIndent(jsonOutput{Validation: vc.Report(tok), Level: lr}, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding report: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	case o.table:
		fmt.Fprint(out, vc.RenderTable())
	default:
		fmt.Fprint(out, vc.RenderASCIITree(tok))
	}
	if lr != nil {
		fmt.Fprint(out, "\n"+lr.Summary())
	}
	return nil
}
