package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/pkg/errors"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// ExplanationView prints an explanation as text.
type ExplanationView struct {
	*domainFp.Explanation
}

func (v ExplanationView) String() string {
	var sb strings.Builder
	state := "not set"
	if v.Set {
		state = "set"
	}
	fmt.Fprintf(&sb, "bit %d %q (section %d): %s", v.Key.Index, v.Key.Name, v.Key.Section, state)
	for _, w := range v.Witnesses {
		fmt.Fprintf(&sb, "\n  %s atoms=%v", w.Extractor, w.Atoms)
		if len(w.Rings) > 0 {
			fmt.Fprintf(&sb, " rings=%v", w.Rings)
		}
		if w.Detail != "" {
			sb.WriteString(" " + w.Detail)
		}
	}
	return sb.String()
}

// NewExplainCmd reports why a bit is or is not set for a document.
func NewExplainCmd() *cobra.Command {
	bit := -1
	var key string
	cmd := &cobra.Command{
		Use:   "explain [FILE|-]",
		Short: "Explain one bit of a molecule's fingerprint",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := resolveBit(bit, key)
			if err != nil {
				return err
			}
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runExplain(cmd, path, index)
		},
	}
	cmd.Flags().IntVarP(&bit, "bit", "b", -1, "bit index 0..880")
	cmd.Flags().StringVarP(&key, "key", "k", "", "key name, e.g. \">= 4 C\"")
	return cmd
}

func resolveBit(bit int, key string) (int, error) {
	switch {
	case key != "" && bit >= 0:
		return 0, errors.InvalidParam("use either --bit or --key, not both")
	case key != "":
		k, err := domainFp.Lookup(key)
		if err != nil {
			return 0, err
		}
		return k.Index, nil
	case bit >= 0:
		return bit, nil
	}
	return 0, errors.InvalidParam("one of --bit or --key is required")
}

func runExplain(cmd *cobra.Command, path string, index int) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	data, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "read input")
	}
	doc, err := moltypes.ParseDocument(data)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cc)
	defer cancel()
	exp, err := cc.Service.Explain(ctx, doc, index)
	if err != nil {
		return err
	}
	return PrintResult(cmd, ExplanationView{exp})
}
