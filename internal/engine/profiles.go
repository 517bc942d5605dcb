package engine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/oklog/ulid/v2"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/ratelimit"
)

const (
	maxAvatarBytes = 5 * 1024 * 1024

	msgNameTooShort     = "Name must be at least 2 characters long"
	msgNameTooLong      = "Name must be less than 100 characters"
	msgEmailInvalid     = "Please enter a valid email address"
	msgPhoneInvalid     = "Please enter a valid phone number"
	msgAgeInvalid       = "Age must be between 13 and 100"
	msgProfileFailed    = "Failed to update profile. Please try again."
	msgAvatarTooLarge   = "File size must be less than 5MB"
	msgAvatarType       = "Only JPG and PNG images are allowed"
	msgAvatarDangerous  = "File type not allowed for security reasons"
	msgAvatarFailed     = "Failed to upload image. Please try again."
	msgStorageMissing   = "File uploads are not configured"
	msgProfileRateLimit = "Too many profile updates. Please wait a few minutes and try again."
	msgAvatarRateLimit  = "Too many uploads. Please wait a minute and try again."
)

var (
	avatarTypes      = []string{"image/jpeg", "image/jpg", "image/png"}
	dangerousExts    = []string{".php", ".js", ".html", ".htm", ".svg", ".xml", ".jsp", ".asp"}
	avatarExtsByType = map[string]string{"image/jpeg": "jpg", "image/jpg": "jpg", "image/png": "png"}
)

// RateLimitError is returned when a user exceeds a per-user limit.
type RateLimitError struct {
	Message string
	Err     error
}

func (e RateLimitError) Error() string { return e.Message }
func (e RateLimitError) Unwrap() error { return e.Err }

func (e Engine) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	return r.GetProfile(ctx, id)
}

// EnsureProfile creates the profile for an authenticated identity on first
// sight. Existing profiles are returned unchanged.
func (e Engine) EnsureProfile(ctx context.Context, id, name, email string) (domain.Profile, bool, error) {
	if id == "" {
		return domain.Profile{}, false, errors.New("profile id required")
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Profile{}, false, err
	}
	now := e.stamp()
	p := domain.Profile{ID: id, Name: sanitizeText(name), Email: strings.TrimSpace(email), TrustScore: defaultTrustScore, CreatedAt: now, UpdatedAt: now}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, false, err
	}
	defer tx.Rollback()
	created, err := r.InsertProfileIfMissing(ctx, tx, p)
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("insert profile: %w", err)
	}
	var evts []domain.Event
	if created {
		evt, err := e.Events.Append(ctx, tx, events.ProfileCreated, "profile", id, id, events.EventPayload{"name": p.Name})
		if err != nil {
			return domain.Profile{}, false, err
		}
		evts = append(evts, evt)
	}
	stored, err := r.GetProfileTx(ctx, tx, id)
	if err != nil {
		return domain.Profile{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, false, err
	}
	e.publish(evts...)
	return stored, created, nil
}

// ProfileUpdate holds the editable profile fields.
type ProfileUpdate struct {
	Name   string
	Email  string
	Phone  string
	School string
	Course string
	Year   string
	Sex    string
	Age    *int
}

func validateProfile(u ProfileUpdate) (ProfileUpdate, error) {
	name := strings.TrimSpace(u.Name)
	switch {
	case runeLen(name) < 2:
		return u, invalid("name", msgNameTooShort)
	case runeLen(name) > 100:
		return u, invalid("name", msgNameTooLong)
	}
	email := strings.TrimSpace(u.Email)
	if email != "" && !emailPattern.MatchString(email) {
		return u, invalid("email", msgEmailInvalid)
	}
	phone := strings.TrimSpace(u.Phone)
	if phone != "" && !phonePattern.MatchString(phone) {
		return u, invalid("phone", msgPhoneInvalid)
	}
	if u.Age != nil && (*u.Age < 13 || *u.Age > 100) {
		return u, invalid("age", msgAgeInvalid)
	}
	return ProfileUpdate{
		Name:   sanitizeText(name),
		Email:  email,
		Phone:  phone,
		School: sanitizeText(u.School),
		Course: sanitizeText(u.Course),
		Year:   sanitizeText(u.Year),
		Sex:    sanitizeText(u.Sex),
		Age:    u.Age,
	}, nil
}

// UpdateProfile validates and stores the editable fields of a profile.
func (e Engine) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) (domain.Profile, error) {
	clean, err := validateProfile(u)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := e.Limits.ProfileUpdates.Allow("profile:" + id); err != nil {
		return domain.Profile{}, RateLimitError{Message: msgProfileRateLimit, Err: err}
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Profile{}, StoreError{Op: "update profile", Message: msgProfileFailed, Err: err}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, StoreError{Op: "update profile", Message: msgProfileFailed, Err: err}
	}
	defer tx.Rollback()
	p, err := r.GetProfileTx(ctx, tx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	p.Name, p.Email, p.Phone = clean.Name, clean.Email, clean.Phone
	p.School, p.Course, p.Year, p.Sex = clean.School, clean.Course, clean.Year, clean.Sex
	p.Age = clean.Age
	p.UpdatedAt = e.stamp()
	if err := r.UpdateProfile(ctx, tx, p); err != nil {
		e.log().Logf("[ERROR] update profile %s: %v", id, err)
		return domain.Profile{}, StoreError{Op: "update profile", Message: msgProfileFailed, Err: err}
	}
	evt, err := e.Events.Append(ctx, tx, events.ProfileUpdated, "profile", id, id, nil)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, StoreError{Op: "update profile", Message: msgProfileFailed, Err: err}
	}
	e.publish(evt)
	return p, nil
}

type AvatarUpload struct {
	UserID      string
	Filename    string
	ContentType string
	Data        []byte
}

func validateAvatar(a AvatarUpload) (string, error) {
	if len(a.Data) > maxAvatarBytes {
		return "", invalid("file", msgAvatarTooLarge)
	}
	ct := strings.ToLower(strings.TrimSpace(a.ContentType))
	if !slices.Contains(avatarTypes, ct) {
		return "", invalid("file", msgAvatarType)
	}
	if slices.Contains(dangerousExts, strings.ToLower(path.Ext(a.Filename))) {
		return "", invalid("file", msgAvatarDangerous)
	}
	return avatarExtsByType[ct], nil
}

// UploadAvatar stores a profile picture and points the profile at it.
func (e Engine) UploadAvatar(ctx context.Context, a AvatarUpload) (domain.Profile, error) {
	ext, err := validateAvatar(a)
	if err != nil {
		return domain.Profile{}, err
	}
	if e.Storage == nil {
		return domain.Profile{}, NotProvisionedError{Feature: "storage", Message: msgStorageMissing}
	}
	if err := e.Limits.AvatarUploads.Allow("avatar:" + a.UserID); err != nil {
		return domain.Profile{}, RateLimitError{Message: msgAvatarRateLimit, Err: err}
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Profile{}, StoreError{Op: "upload avatar", Message: msgAvatarFailed, Err: err}
	}
	if _, err := r.GetProfile(ctx, a.UserID); err != nil {
		return domain.Profile{}, err
	}
	id := ulid.Make().String()
	key := fmt.Sprintf("%s/profile-pics/profile-pic-%d-%s.%s", a.UserID, e.now().UnixMilli(), strings.ToLower(id[len(id)-10:]), ext)
	if err := e.Storage.Write(ctx, key, a.Data, a.ContentType); err != nil {
		e.log().Logf("[ERROR] store avatar for %s: %v", a.UserID, err)
		return domain.Profile{}, StoreError{Op: "upload avatar", Message: msgAvatarFailed, Err: err}
	}
	url := e.Storage.URL(key)
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := e.Storage.Delete(context.WithoutCancel(ctx), key); err != nil {
			e.log().Logf("[WARN] remove orphaned avatar %s: %v", key, err)
		}
	}()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Profile{}, StoreError{Op: "upload avatar", Message: msgAvatarFailed, Err: err}
	}
	defer tx.Rollback()
	now := e.stamp()
	if err := r.SetProfilePic(ctx, tx, a.UserID, url, now); err != nil {
		return domain.Profile{}, StoreError{Op: "upload avatar", Message: msgAvatarFailed, Err: err}
	}
	evt, err := e.Events.Append(ctx, tx, events.AvatarUploaded, "profile", a.UserID, a.UserID, events.EventPayload{"path": key})
	if err != nil {
		return domain.Profile{}, err
	}
	p, err := r.GetProfileTx(ctx, tx, a.UserID)
	if err != nil {
		return domain.Profile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Profile{}, StoreError{Op: "upload avatar", Message: msgAvatarFailed, Err: err}
	}
	committed = true
	e.publish(evt)
	return p, nil
}

// IsRateLimited reports whether err came from a per-user limit.
func IsRateLimited(err error) bool {
	var ex ratelimit.ExceededError
	return errors.As(err, &ex)
}
