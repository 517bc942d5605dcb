package repo

import (
	"context"
	"database/sql"
	"errors"

	"campushustle/internal/domain"
)

const profileColumns = "id,name,email,phone,school,course,year,sex,age,profile_pic_url,trust_score,created_at,updated_at"

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	var email, phone, school, course, year, sex, pic sql.NullString
	var age sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &email, &phone, &school, &course, &year, &sex, &age, &pic, &p.TrustScore, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.Email = email.String
	p.Phone = phone.String
	p.School = school.String
	p.Course = course.String
	p.Year = year.String
	p.Sex = sex.String
	p.ProfilePicURL = pic.String
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	return p, nil
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	return scanProfile(r.DB.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

func (r Repo) GetProfileTx(ctx context.Context, tx *sql.Tx, id string) (domain.Profile, error) {
	return scanProfile(tx.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=?`, id))
}

// InsertProfileIfMissing creates a profile row unless one already exists.
// It reports whether a row was written.
func (r Repo) InsertProfileIfMissing(ctx context.Context, tx *sql.Tx, p domain.Profile) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO profiles(id,name,email,trust_score,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Email), p.TrustScore, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) UpdateProfile(ctx context.Context, tx *sql.Tx, p domain.Profile) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET name=?, email=?, phone=?, school=?, course=?, year=?, sex=?, age=?, updated_at=? WHERE id=?`,
		p.Name, nullable(p.Email), nullable(p.Phone), nullable(p.School), nullable(p.Course), nullable(p.Year), nullable(p.Sex), nullableIntPtr(p.Age), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetProfilePic(ctx context.Context, tx *sql.Tx, id, url, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE profiles SET profile_pic_url=?, updated_at=? WHERE id=?`, url, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
