package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	domainFp "github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
	moltypes "github.com/turtacn/pcfp/pkg/types/molecule"
)

// FingerprintRow is one computed (or failed) document.
type FingerprintRow struct {
	Index       int    `json:"index"`
	MoleculeID  string `json:"molecule_id,omitempty"`
	Digest      string `json:"digest,omitempty"`
	Formula     string `json:"formula,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	OnBits      int    `json:"on_bits"`
	Bits        []int  `json:"bits,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
}

// FingerprintRows renders as a table.
type FingerprintRows []FingerprintRow

func (FingerprintRows) TableHeaders() []string {
	return []string{"#", "MOLECULE", "ON BITS", "FINGERPRINT"}
}

func (r FingerprintRows) TableRows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, row := range r {
		value := row.Fingerprint
		if row.ErrorCode != "" {
			value = fmt.Sprintf("ERROR %s: %s", row.ErrorCode, row.Error)
		}
		rows = append(rows, []string{strconv.Itoa(row.Index), row.MoleculeID, strconv.Itoa(row.OnBits), value})
	}
	return rows
}

type computeOptions struct {
	bits     bool
	failFast bool
}

// NewComputeCmd computes fingerprints for every document in a JSON array
// or NDJSON stream.
func NewComputeCmd() *cobra.Command {
	opts := &computeOptions{}
	cmd := &cobra.Command{
		Use:     "compute [FILE|-]",
		Aliases: []string{"batch"},
		Short:   "Compute fingerprints for molecule documents",
		Long: "Reads one JSON document, a JSON array of documents or NDJSON from FILE\n" +
			"(or standard input) and prints one fingerprint per document.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runCompute(cmd, path, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.bits, "bits", false, "include the list of set bit indices")
	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "stop at the first document that fails")
	return cmd
}

func runCompute(cmd *cobra.Command, path string, opts *computeOptions) error {
	cc, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	docs, err := moltypes.ReadDocuments(in)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errors.InvalidParam("no molecule documents in input")
	}

	ctx, cancel := commandContext(cmd, cc)
	defer cancel()

	res, err := cc.Service.ComputeBatch(ctx, &appfp.BatchRequest{
		JobID:     uuid.NewString(),
		Documents: docs,
		FailFast:  opts.failFast,
	})
	if err != nil {
		return err
	}
	cc.Logger.Debug("batch computed",
		logging.String("job_id", res.JobID),
		logging.Int("succeeded", res.Succeeded),
		logging.Int("failed", res.Failed))

	rows := make(FingerprintRows, len(res.Items))
	for i, it := range res.Items {
		row := FingerprintRow{Index: it.Index, ErrorCode: it.ErrorCode, Error: it.ErrorMessage}
		if it.Index < len(docs) && docs[it.Index] != nil {
			row.MoleculeID = docs[it.Index].ID
		}
		if it.Record != nil {
			fillRow(&row, it.Record, cc.Encoding, opts.bits)
		}
		rows[i] = row
	}
	if err := PrintResult(cmd, rows); err != nil {
		return err
	}
	if res.Failed > 0 {
		return errors.Newf(errors.ErrCodeFingerprintGenerationFailed, "%d of %d documents failed", res.Failed, len(docs))
	}
	return nil
}

func fillRow(row *FingerprintRow, rec *domainFp.Record, encoding string, bits bool) {
	row.Digest = rec.Digest
	row.Formula = rec.Formula
	row.OnBits = rec.OnBits
	if rec.MoleculeID != "" {
		row.MoleculeID = rec.MoleculeID
	}
	if rec.Fingerprint == nil {
		return
	}
	row.Encoding = encoding
	row.Fingerprint = encode(rec.Fingerprint, encoding)
	if bits {
		row.Bits = rec.Fingerprint.OnBits()
	}
}

func encode(fp *domainFp.Fingerprint, encoding string) string {
	if encoding == "hex" {
		return fp.Hex()
	}
	return fp.Base64()
}

// decodeFingerprint accepts either wire form. Hex strings are exactly
// 2*ByteLen characters; anything else is treated as base64.
func decodeFingerprint(s string) (*domainFp.Fingerprint, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*domainFp.ByteLen {
		return domainFp.ParseHex(s)
	}
	return domainFp.ParseBase64(s)
}
