package ceremony

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kirei/ksrsigner/internal/errs"
	"github.com/kirei/ksrsigner/internal/model"
	"github.com/kirei/ksrsigner/internal/xmlcodec"
)

// RunFiles wraps Run with the file handling spec §5 describes: the
// previous SKR and KSR are read and parsed, the produced SKR is
// written atomically (temp file in the output directory, fsync,
// rename) so a crash mid-write never leaves a corrupt or partial SKR
// in place. prevSKRPath may be empty only on a bootstrap ceremony.
func (o *Orchestrator) RunFiles(prevSKRPath, ksrPath, outPath string, approvedAlgorithms []uint8, now time.Time) (*CeremonyReport, error) {
	var prevSKR *model.Document
	if prevSKRPath != "" {
		f, err := os.Open(prevSKRPath)
		if err != nil {
			return nil, &errs.ConfigurationError{Reason: "ceremony: opening previous SKR: " + err.Error()}
		}
		prevSKR, err = xmlcodec.Parse(f, approvedAlgorithms)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	ksrFile, err := os.Open(ksrPath)
	if err != nil {
		return nil, &errs.ConfigurationError{Reason: "ceremony: opening KSR: " + err.Error()}
	}
	ksr, err := xmlcodec.Parse(ksrFile, approvedAlgorithms)
	ksrFile.Close()
	if err != nil {
		return nil, err
	}

	skr, report, err := o.Run(prevSKR, ksr, now)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(outPath, skr); err != nil {
		return nil, err
	}

	return report, nil
}

func writeAtomic(path string, doc *model.Document) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return &errs.ConfigurationError{Reason: "ceremony: creating temp output file: " + err.Error()}
	}
	tmpPath := tmp.Name()

	if err := xmlcodec.Emit(tmp, doc); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &errs.ConfigurationError{Reason: "ceremony: fsync of output file: " + err.Error()}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &errs.ConfigurationError{Reason: "ceremony: closing output file: " + err.Error()}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &errs.ConfigurationError{Reason: "ceremony: renaming output file into place: " + err.Error()}
	}
	return nil
}
