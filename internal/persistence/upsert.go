package persistence

import "gorm.io/gorm/clause"

// onConflictUpdateLastOpened upserts a RecentFile by its unique Path,
// bumping LastOpenedAt when the path is already present.
func onConflictUpdateLastOpened() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_opened_at"}),
	}
}

// onConflictUpdatePosition upserts a ResumePosition by its unique
// TimelinePath, overwriting the stored position and timestamp.
func onConflictUpdatePosition() clause.OnConflict {
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "timeline_path"}},
		DoUpdates: clause.AssignmentColumns([]string{"position_seconds", "updated_at"}),
	}
}
