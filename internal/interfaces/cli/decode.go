package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
)

// DecodedFingerprint lists the keys set in an encoded fingerprint.
type DecodedFingerprint struct {
	OnBits int            `json:"on_bits"`
	Keys   []domainFp.Key `json:"keys"`
}

func (DecodedFingerprint) TableHeaders() []string { return []string{"BIT", "SECTION", "KEY"} }

func (d DecodedFingerprint) TableRows() [][]string { return keyRows(d.Keys) }

// NewDecodeCmd decodes a base64 or hex fingerprint into its keys.
func NewDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FINGERPRINT",
		Short: "List the keys set in an encoded fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := decodeFingerprint(args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, DecodedFingerprint{OnBits: fp.Count(), Keys: fp.Keys()})
		},
	}
}

// SimilarityResult is the Tanimoto coefficient of two fingerprints.
type SimilarityResult struct {
	Tanimoto float64 `json:"tanimoto"`
	OnBitsA  int     `json:"on_bits_a"`
	OnBitsB  int     `json:"on_bits_b"`
}

func (s SimilarityResult) String() string { return strconv.FormatFloat(s.Tanimoto, 'f', 4, 64) }

// NewSimilarityCmd compares two encoded fingerprints.
func NewSimilarityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity FINGERPRINT FINGERPRINT",
		Short: "Tanimoto similarity of two encoded fingerprints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := decodeFingerprint(args[0])
			if err != nil {
				return fmt.Errorf("first fingerprint: %w", err)
			}
			b, err := decodeFingerprint(args[1])
			if err != nil {
				return fmt.Errorf("second fingerprint: %w", err)
			}
			return PrintResult(cmd, SimilarityResult{
				Tanimoto: domainFp.Tanimoto(a, b),
				OnBitsA:  a.Count(),
				OnBitsB:  b.Count(),
			})
		},
	}
}

func keyRows(keys []domainFp.Key) [][]string {
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{strconv.Itoa(k.Index), strconv.Itoa(int(k.Section)), k.Name}
	}
	return rows
}
