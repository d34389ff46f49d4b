package assessment

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annexops/registry/internal/audit"
	"github.com/annexops/registry/internal/authn"
	"github.com/annexops/registry/internal/domain"
)

func testCtx(orgID uuid.UUID) context.Context {
	p := &authn.BasePrincipal{UserID: uuid.New().String(), OrgID: orgID.String(), Role: domain.RoleEditor}
	return authn.WithPrincipal(context.Background(), p)
}

func TestScore_LowTrueCountIsNotHighRisk(t *testing.T) {
	answers := []Answer{
		{QuestionID: "q1_hiring_decisions", Answer: true},
		{QuestionID: "q2_cv_evaluation", Answer: true},
		{QuestionID: "q3_candidate_ranking", Answer: true},
	}
	pct, isHighRisk, rationale := score(answers)
	assert.InDelta(t, float64(3)/13*100, pct, 0.01)
	assert.False(t, isHighRisk)
	assert.Len(t, rationale, 3)
}

func TestScore_MajorityTrueIsHighRisk(t *testing.T) {
	var answers []Answer
	for i, q := range Questions {
		answers = append(answers, Answer{QuestionID: q.ID, Answer: i < 8})
	}
	pct, isHighRisk, rationale := score(answers)
	assert.InDelta(t, float64(8)/13*100, pct, 0.01)
	assert.True(t, isHighRisk)
	assert.Len(t, rationale, 8)
}

func TestScore_UnknownQuestionIDIgnored(t *testing.T) {
	answers := []Answer{{QuestionID: "not-a-real-question", Answer: true}}
	pct, isHighRisk, rationale := score(answers)
	assert.Equal(t, 0.0, pct)
	assert.False(t, isHighRisk)
	assert.Empty(t, rationale)
}

func TestService_Submit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	versionID, userID, orgID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("INSERT INTO high_risk_assessments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	svc := NewService(audit.NewLogger())
	rec, err := svc.Submit(testCtx(orgID), tx, orgID, versionID, userID, []Answer{
		{QuestionID: "q1_hiring_decisions", Answer: true},
	}, "initial pass")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, versionID, rec.VersionID)
	assert.False(t, rec.IsHighRisk)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_Latest_NoRowsReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orgID, versionID := uuid.New(), uuid.New()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(versionID, orgID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM high_risk_assessments").
		WithArgs(versionID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version_id", "answers", "score", "is_high_risk", "rationale", "created_by", "created_at"}))

	svc := NewService(audit.NewLogger())
	rec, err := svc.Latest(context.Background(), db, orgID, versionID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestChecklist_EmptyWhenNotHighRisk(t *testing.T) {
	assert.Empty(t, Checklist(false))
	assert.NotEmpty(t, Checklist(true))
}
