package main

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository defines the interface for database operations.
// Not-found is reported with nil/false results, never with an error; errors
// mean the driver or the connection failed.
type Repository interface {
	CreateTables() error
	FindRegistration(userID int, city string) (*Registration, error)
	FindRegistrations(userID int) ([]Registration, error)
	UpsertRegistration(reg Registration) error
	ArchiveAndRemove(userID int, city, reason string) (bool, error)
	ArchiveAndRemoveAll(userID int, reason string) (int, error)
	RecordPaymentSubmission(userID int, city string, due PaymentDue, proofRef string) (bool, error)
	UpdatePaymentStatus(userID int, city string, status PaymentStatus, comment string, additionalAmount int) (bool, error)
	PaymentHistory(userID int, city string) ([]PaymentEntry, error)
	SaveReviewRef(ref ReviewRef) error
	FindReviewRefByMessage(adminMsgID int) (*ReviewRef, error)
	InsertFeedback(fb Feedback) error
	AllRegistrations() ([]Registration, error)
	ArchivedRegistrations() ([]ArchivedRegistration, error)
	MarkVisited(userID int) (bool, error)
	CityStats() ([]CityStat, error)
}

// SQLiteRepository implements the Repository interface.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLiteRepository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

const registrationColumns = `user_id, username, full_name, graduation_year, class_letter,
	target_city, graduate_type, payment_status, payment_amount, regular_amount,
	discounted_amount, formula_amount, proof_file_id, payment_comment,
	payment_at, verified_at, visited, created_at`

// CreateTables creates the live, archive, history, review and feedback tables.
func (r *SQLiteRepository) CreateTables() error {
	registrationFields := `
		user_id INTEGER NOT NULL,
		username TEXT DEFAULT '',
		full_name TEXT DEFAULT '',
		graduation_year INTEGER DEFAULT 0,
		class_letter TEXT DEFAULT '',
		target_city TEXT NOT NULL,
		graduate_type TEXT DEFAULT 'graduate',
		payment_status TEXT DEFAULT '',
		payment_amount INTEGER DEFAULT 0,
		regular_amount INTEGER DEFAULT 0,
		discounted_amount INTEGER DEFAULT 0,
		formula_amount INTEGER DEFAULT 0,
		proof_file_id TEXT DEFAULT '',
		payment_comment TEXT DEFAULT '',
		payment_at DATETIME,
		verified_at DATETIME,
		visited INTEGER DEFAULT 0,
		created_at DATETIME`

	tables := []string{
		`CREATE TABLE IF NOT EXISTS registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,` + registrationFields + `
		);`,
		`CREATE TABLE IF NOT EXISTS registrations_archive (
			id INTEGER PRIMARY KEY AUTOINCREMENT,` + registrationFields + `,
			deleted_at DATETIME,
			deletion_reason TEXT DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS payment_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			target_city TEXT NOT NULL,
			amount INTEGER NOT NULL,
			total_after INTEGER NOT NULL,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS review_refs (
			token TEXT NOT NULL,
			admin_msg_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			target_city TEXT NOT NULL,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			username TEXT DEFAULT '',
			target_city TEXT DEFAULT '',
			venue_rating INTEGER DEFAULT 0,
			program_rating INTEGER DEFAULT 0,
			overall_rating INTEGER DEFAULT 0,
			comment TEXT DEFAULT '',
			created_at DATETIME
		);`,
	}

	for _, table := range tables {
		if _, err := r.db.Exec(table); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRegistration(row rowScanner) (*Registration, error) {
	var reg Registration
	var paymentAt, verifiedAt, createdAt sql.NullString
	var visited int
	err := row.Scan(
		&reg.UserID, &reg.Username, &reg.FullName, &reg.GraduationYear,
		&reg.ClassLetter, &reg.TargetCity, (*string)(&reg.GraduateType),
		(*string)(&reg.PaymentStatus), &reg.PaymentAmount, &reg.RegularAmount,
		&reg.DiscountedAmount, &reg.FormulaAmount, &reg.ProofFileID,
		&reg.PaymentComment, &paymentAt, &verifiedAt, &visited, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	reg.Visited = visited == 1
	reg.PaymentAt = parseNullTime(paymentAt)
	reg.VerifiedAt = parseNullTime(verifiedAt)
	if t := parseNullTime(createdAt); t != nil {
		reg.CreatedAt = *t
	}
	return &reg, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// FindRegistration returns the registration for (user, city), or nil.
func (r *SQLiteRepository) FindRegistration(userID int, city string) (*Registration, error) {
	row := r.db.QueryRow("SELECT "+registrationColumns+" FROM registrations WHERE user_id = ? AND target_city = ?", userID, city)
	reg, err := scanRegistration(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return reg, nil
}

// FindRegistrations returns all live registrations of a user, oldest first.
func (r *SQLiteRepository) FindRegistrations(userID int) ([]Registration, error) {
	rows, err := r.db.Query("SELECT "+registrationColumns+" FROM registrations WHERE user_id = ? ORDER BY created_at ASC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// UpsertRegistration replaces the identity fields of an existing (user, city)
// record, preserving its payment fields, or inserts a new record.
func (r *SQLiteRepository) UpsertRegistration(reg Registration) error {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM registrations WHERE user_id = ? AND target_city = ?",
		reg.UserID, reg.TargetCity).Scan(&count)
	if err != nil {
		return err
	}

	if count > 0 {
		stmt, err := r.db.Prepare(`UPDATE registrations SET username = ?, full_name = ?,
			graduation_year = ?, class_letter = ?, graduate_type = ?
			WHERE user_id = ? AND target_city = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		_, err = stmt.Exec(reg.Username, reg.FullName, reg.GraduationYear, reg.ClassLetter,
			string(reg.GraduateType), reg.UserID, reg.TargetCity)
		return err
	}

	stmt, err := r.db.Prepare(`INSERT INTO registrations (user_id, username, full_name,
		graduation_year, class_letter, target_city, graduate_type, payment_status,
		payment_amount, visited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(reg.UserID, reg.Username, reg.FullName, reg.GraduationYear,
		reg.ClassLetter, reg.TargetCity, string(reg.GraduateType),
		string(reg.PaymentStatus), r.now().UTC().Format(time.RFC3339))
	return err
}

// archiveStmt copies live rows matching the WHERE clause into the archive.
const archiveStmt = `INSERT INTO registrations_archive (` + registrationColumns + `, deleted_at, deletion_reason)
	SELECT ` + registrationColumns + `, ?, ? FROM registrations `

// ArchiveAndRemove copies the (user, city) record into the archive and
// deletes it from the live table. Returns false when nothing matched.
func (r *SQLiteRepository) ArchiveAndRemove(userID int, city, reason string) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(archiveStmt+"WHERE user_id = ? AND target_city = ?",
		r.now().UTC().Format(time.RFC3339), reason, userID, city)
	if err != nil {
		return false, err
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if copied == 0 {
		return false, nil
	}
	if _, err := tx.Exec("DELETE FROM registrations WHERE user_id = ? AND target_city = ?", userID, city); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// ArchiveAndRemoveAll archives every live registration of the user.
// Returns the number of archived records.
func (r *SQLiteRepository) ArchiveAndRemoveAll(userID int, reason string) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(archiveStmt+"WHERE user_id = ?",
		r.now().UTC().Format(time.RFC3339), reason, userID)
	if err != nil {
		return 0, err
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if copied == 0 {
		return 0, nil
	}
	if _, err := tx.Exec("DELETE FROM registrations WHERE user_id = ?", userID); err != nil {
		return 0, err
	}
	return int(copied), tx.Commit()
}

// RecordPaymentSubmission marks the registration pending and snapshots the
// computed amounts and proof reference. Returns false when nothing matched.
func (r *SQLiteRepository) RecordPaymentSubmission(userID int, city string, due PaymentDue, proofRef string) (bool, error) {
	stmt, err := r.db.Prepare(`UPDATE registrations SET payment_status = ?,
		regular_amount = ?, discounted_amount = ?, formula_amount = ?,
		proof_file_id = ?, payment_at = ?
		WHERE user_id = ? AND target_city = ?`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	res, err := stmt.Exec(string(PaymentStatusPending), due.Regular, due.Discounted,
		due.Formula, proofRef, r.now().UTC().Format(time.RFC3339), userID, city)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// UpdatePaymentStatus records the admin decision. A positive additionalAmount
// appends a payment_history row and adds to the cumulative total, so repeated
// confirmations accumulate instead of overwriting. The verification time is
// always stamped. Returns false when (user, city) has no live registration.
func (r *SQLiteRepository) UpdatePaymentStatus(userID int, city string, status PaymentStatus, comment string, additionalAmount int) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var total int
	err = tx.QueryRow("SELECT payment_amount FROM registrations WHERE user_id = ? AND target_city = ?",
		userID, city).Scan(&total)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}

	now := r.now().UTC().Format(time.RFC3339)
	if additionalAmount > 0 {
		total += additionalAmount
		if _, err := tx.Exec(`INSERT INTO payment_history (user_id, target_city, amount, total_after, created_at)
			VALUES (?, ?, ?, ?, ?)`, userID, city, additionalAmount, total, now); err != nil {
			return false, err
		}
	}

	if _, err := tx.Exec(`UPDATE registrations SET payment_status = ?, payment_comment = ?,
		payment_amount = ?, verified_at = ? WHERE user_id = ? AND target_city = ?`,
		string(status), comment, total, now, userID, city); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// PaymentHistory returns the append-only history for (user, city), oldest first.
func (r *SQLiteRepository) PaymentHistory(userID int, city string) ([]PaymentEntry, error) {
	rows, err := r.db.Query(`SELECT user_id, target_city, amount, total_after, created_at
		FROM payment_history WHERE user_id = ? AND target_city = ? ORDER BY id ASC`, userID, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []PaymentEntry
	for rows.Next() {
		var e PaymentEntry
		var createdAt sql.NullString
		if err := rows.Scan(&e.UserID, &e.City, &e.Amount, &e.TotalAfter, &createdAt); err != nil {
			return nil, err
		}
		if t := parseNullTime(createdAt); t != nil {
			e.CreatedAt = *t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SaveReviewRef stores the link between a forwarded proof message and its
// pending submission.
func (r *SQLiteRepository) SaveReviewRef(ref ReviewRef) error {
	_, err := r.db.Exec(`INSERT INTO review_refs (token, admin_msg_id, user_id, target_city, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ref.Token, ref.AdminMsgID, ref.UserID, ref.City, r.now().UTC().Format(time.RFC3339))
	return err
}

// FindReviewRefByMessage resolves a reply in the organizer chat back to the
// submission under review, or nil.
func (r *SQLiteRepository) FindReviewRefByMessage(adminMsgID int) (*ReviewRef, error) {
	row := r.db.QueryRow(`SELECT token, admin_msg_id, user_id, target_city, created_at
		FROM review_refs WHERE admin_msg_id = ?`, adminMsgID)
	var ref ReviewRef
	var createdAt sql.NullString
	err := row.Scan(&ref.Token, &ref.AdminMsgID, &ref.UserID, &ref.City, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if t := parseNullTime(createdAt); t != nil {
		ref.CreatedAt = *t
	}
	return &ref, nil
}

// InsertFeedback stores one survey submission. No uniqueness: users may
// submit several times.
func (r *SQLiteRepository) InsertFeedback(fb Feedback) error {
	_, err := r.db.Exec(`INSERT INTO feedback (user_id, username, target_city,
		venue_rating, program_rating, overall_rating, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.UserID, fb.Username, fb.City, fb.VenueRating, fb.ProgramRating,
		fb.OverallRating, fb.Comment, r.now().UTC().Format(time.RFC3339))
	return err
}

// AllRegistrations retrieves all live registrations for export.
func (r *SQLiteRepository) AllRegistrations() ([]Registration, error) {
	rows, err := r.db.Query("SELECT " + registrationColumns + " FROM registrations ORDER BY target_city ASC, full_name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// ArchivedRegistrations retrieves the cancellation archive for export.
func (r *SQLiteRepository) ArchivedRegistrations() ([]ArchivedRegistration, error) {
	rows, err := r.db.Query("SELECT " + registrationColumns + `, deleted_at, deletion_reason
		FROM registrations_archive ORDER BY deleted_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var archived []ArchivedRegistration
	for rows.Next() {
		var a ArchivedRegistration
		var paymentAt, verifiedAt, createdAt, deletedAt sql.NullString
		var visited int
		err := rows.Scan(
			&a.UserID, &a.Username, &a.FullName, &a.GraduationYear,
			&a.ClassLetter, &a.TargetCity, (*string)(&a.GraduateType),
			(*string)(&a.PaymentStatus), &a.PaymentAmount, &a.RegularAmount,
			&a.DiscountedAmount, &a.FormulaAmount, &a.ProofFileID,
			&a.PaymentComment, &paymentAt, &verifiedAt, &visited, &createdAt,
			&deletedAt, &a.DeletionReason,
		)
		if err != nil {
			return nil, err
		}
		a.Visited = visited == 1
		a.PaymentAt = parseNullTime(paymentAt)
		a.VerifiedAt = parseNullTime(verifiedAt)
		if t := parseNullTime(createdAt); t != nil {
			a.CreatedAt = *t
		}
		if t := parseNullTime(deletedAt); t != nil {
			a.DeletedAt = *t
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}

// MarkVisited sets the visited flag on every live registration of the user.
// Returns false when the user has none.
func (r *SQLiteRepository) MarkVisited(userID int) (bool, error) {
	res, err := r.db.Exec("UPDATE registrations SET visited = 1 WHERE user_id = ?", userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CityStats aggregates counts and confirmed totals per city.
func (r *SQLiteRepository) CityStats() ([]CityStat, error) {
	rows, err := r.db.Query(`SELECT target_city, COUNT(*),
		SUM(CASE WHEN payment_status = 'confirmed' THEN 1 ELSE 0 END),
		SUM(CASE WHEN payment_status = 'confirmed' THEN payment_amount ELSE 0 END)
		FROM registrations GROUP BY target_city ORDER BY target_city ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CityStat
	for rows.Next() {
		var s CityStat
		if err := rows.Scan(&s.City, &s.Registrations, &s.Paid, &s.ConfirmedSum); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
