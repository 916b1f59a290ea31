// Package auditlog records one row per ceremony run into a local
// SQLite ledger, grounded on tdns's KeyDB/Tx transaction idiom
// (db.go/keystore.go): open once, begin/commit/rollback per write, log
// the SQL error and roll back rather than panic. This is a read/record
// path over the same CeremonyReport the orchestrator already produces;
// it never feeds back into a policy decision.
package auditlog

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kirei/ksrsigner/internal/ceremony"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS 'CeremonyLog' (
id		  INTEGER PRIMARY KEY,
ts		  TEXT,
ksr_id		  TEXT,
ksr_serial	  INTEGER,
skr_id		  TEXT,
skr_serial	  INTEGER,
bundle_count	  INTEGER,
signature_count	  INTEGER,
outcome		  TEXT,
violation_count	  INTEGER,
detail		  TEXT
)`

// DB is a handle on the ceremony audit ledger.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite ledger at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// Outcome names the result recorded for one ceremony run.
type Outcome string

const (
	OutcomeSigned        Outcome = "signed"
	OutcomePolicyRejected Outcome = "policy_rejected"
	OutcomeFailed         Outcome = "failed"
)

// RecordSuccess appends one row for a completed ceremony.
func (d *DB) RecordSuccess(report *ceremony.CeremonyReport, at time.Time) error {
	return d.insert(at, report.KSRID, report.KSRSerial, report.SKRID, report.SKRSerial,
		report.BundleCount, report.SignatureCount, OutcomeSigned, 0, "")
}

// RecordFailure appends one row for a ceremony run that did not
// produce a signed SKR: outcome distinguishes a policy rejection
// (violations non-empty) from any other failure.
func (d *DB) RecordFailure(ksrID string, ksrSerial int64, outcome Outcome, violationCount int, detail string, at time.Time) error {
	return d.insert(at, ksrID, ksrSerial, "", 0, 0, 0, outcome, violationCount, detail)
}

func (d *DB) insert(at time.Time, ksrID string, ksrSerial int64, skrID string, skrSerial int64,
	bundleCount, signatureCount int, outcome Outcome, violationCount int, detail string) error {

	const insertSQL = `
INSERT INTO CeremonyLog (ts, ksr_id, ksr_serial, skr_id, skr_serial, bundle_count, signature_count, outcome, violation_count, detail)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(insertSQL, at.Format(time.RFC3339), ksrID, ksrSerial, skrID, skrSerial,
		bundleCount, signatureCount, string(outcome), violationCount, detail)
	if err != nil {
		log.Printf("auditlog: insert failed: %v. Rolling back.", err)
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Printf("auditlog: rollback failed: %v", rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Row is one recorded ceremony run, as returned by Recent.
type Row struct {
	Timestamp      time.Time
	KSRID          string
	KSRSerial      int64
	SKRID          string
	SKRSerial      int64
	BundleCount    int
	SignatureCount int
	Outcome        Outcome
	ViolationCount int
	Detail         string
}

// Recent returns the n most recently recorded ceremony runs, newest
// first.
func (d *DB) Recent(n int) ([]Row, error) {
	const selectSQL = `
SELECT ts, ksr_id, ksr_serial, skr_id, skr_serial, bundle_count, signature_count, outcome, violation_count, detail
FROM CeremonyLog ORDER BY id DESC LIMIT ?`

	rows, err := d.db.Query(selectSQL, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ts, outcome string
		if err := rows.Scan(&ts, &r.KSRID, &r.KSRSerial, &r.SKRID, &r.SKRSerial,
			&r.BundleCount, &r.SignatureCount, &outcome, &r.ViolationCount, &r.Detail); err != nil {
			return nil, err
		}
		r.Outcome = Outcome(outcome)
		r.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
