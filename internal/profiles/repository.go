package profiles

import (
	"errors"

	"gorm.io/gorm"
)

var ErrProfileNotFound = errors.New("profile not found")

type Repository struct {
	DB *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{DB: db}
}

func (r *Repository) Create(profile *Profile) error {
	return r.DB.Create(profile).Error
}

func (r *Repository) GetByUID(uid string) (*Profile, error) {
	var profile Profile
	err := r.DB.First(&profile, "uid = ?", uid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	return &profile, err
}

// DisplayName resolves a UID to something the UI can render. Unknown users
// fall back to the raw UID rather than failing the battle screen.
func (r *Repository) DisplayName(uid string) string {
	profile, err := r.GetByUID(uid)
	if err != nil {
		return uid
	}
	return profile.DisplayName
}

func (r *Repository) UpdateDisplayName(uid, displayName string) (*Profile, error) {
	var profile Profile
	if err := r.DB.First(&profile, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	if err := r.DB.Model(&profile).Update("display_name", displayName).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
