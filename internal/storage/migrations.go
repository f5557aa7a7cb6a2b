package storage

import (
	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/ezinfo/internal/model"
)

// Rows written before the mode columns existed carry empty values; give them the defaults.
func backfillTouchpointModes(database *gorm.DB) error {
	if err := database.Model(&model.Touchpoint{}).
		Where("primary_mode IS NULL OR TRIM(primary_mode) = ''").
		Update("primary_mode", string(model.PrimaryModeGoogleReviews)).Error; err != nil {
		return err
	}
	return database.Model(&model.Touchpoint{}).
		Where("redirect_mode IS NULL OR TRIM(redirect_mode) = ''").
		Update("redirect_mode", string(model.RedirectModeAssist)).Error
}
