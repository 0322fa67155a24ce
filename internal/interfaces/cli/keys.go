package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/pkg/errors"
)

// KeyList is a slice of catalogue keys.
type KeyList []domainFp.Key

func (KeyList) TableHeaders() []string { return []string{"BIT", "SECTION", "KEY"} }

func (l KeyList) TableRows() [][]string { return keyRows(l) }

// NewKeysCmd prints the bit catalogue, or one section of it.
func NewKeysCmd() *cobra.Command {
	var section int
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Print the fingerprint bit catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if section == 0 {
				return PrintResult(cmd, KeyList(domainFp.AllKeys()))
			}
			secs := domainFp.Sections()
			if section < 1 || section > len(secs) {
				return errors.InvalidParam(fmt.Sprintf("section must be between 1 and %d", len(secs)))
			}
			return PrintResult(cmd, KeyList(domainFp.SectionKeys(secs[section-1])))
		},
	}
	cmd.Flags().IntVarP(&section, "section", "s", 0, "only list keys of section 1..7")
	return cmd
}
