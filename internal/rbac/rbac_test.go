package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annexops/registry/internal/api"
	"github.com/annexops/registry/internal/domain"
)

func TestCheckTransition_EditorDraftToReview(t *testing.T) {
	err := CheckTransition(domain.RoleEditor, domain.VersionDraft, domain.VersionReview)
	assert.NoError(t, err)
}

func TestCheckTransition_EditorCannotApprove(t *testing.T) {
	err := CheckTransition(domain.RoleEditor, domain.VersionReview, domain.VersionApproved)
	var re *api.RegistryError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindForbidden, re.Kind)
}

func TestCheckTransition_AdminCanApprove(t *testing.T) {
	err := CheckTransition(domain.RoleAdmin, domain.VersionReview, domain.VersionApproved)
	assert.NoError(t, err)
}

func TestCheckTransition_ApprovedIsTerminal(t *testing.T) {
	err := CheckTransition(domain.RoleAdmin, domain.VersionApproved, domain.VersionDraft)
	var re *api.RegistryError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, api.KindConflict, re.Kind)
}
