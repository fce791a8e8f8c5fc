package repositories

import (
	"testing"

	"studio_engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// dryRunDB renders SQL without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "studio:studio@tcp(127.0.0.1:3306)/studio?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestLinkToReportOnlyClaimsUnlinkedRows(t *testing.T) {
	db := dryRunDB(t)

	for _, model := range []interface{}{&models.Bonus{}, &models.Expense{}} {
		sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
			return linkToReport(tx, model, []uint{4, 5}, 9)
		})
		assert.Contains(t, sql, "`report_id`=9")
		assert.Contains(t, sql, "id IN (4,5) AND report_id IS NULL")
	}
}

func TestLinkToReportWithoutRowsIsNoop(t *testing.T) {
	db := dryRunDB(t)
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return linkToReport(tx, &models.Bonus{}, nil, 9)
	})
	assert.Empty(t, sql)
}
