package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopegraph/backend/pkg/errors"
)

func TestValidateProperties_RequiredField(t *testing.T) {
	_, err := ValidateProperties(EntityPerson, map[string]interface{}{
		"role": "engineer",
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateProperties_DocumentDefaultsTitle(t *testing.T) {
	props, err := ValidateProperties(EntityDocument, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, UntitledDocument, props["title"])

	// An empty title also gets the default
	props, err = ValidateProperties(EntityDocument, map[string]interface{}{"title": ""})
	require.NoError(t, err)
	assert.Equal(t, UntitledDocument, props["title"])
}

func TestValidateProperties_UnknownProperty(t *testing.T) {
	_, err := ValidateProperties(EntityPerson, map[string]interface{}{
		"name":      "Ada",
		"shoe_size": 42,
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestValidateProperties_CommonFieldsAllowed(t *testing.T) {
	props, err := ValidateProperties(EntitySkill, map[string]interface{}{
		"name":          "Go",
		"source_id":     "doc-1",
		"context_title": "resume.html",
	})
	require.NoError(t, err)
	assert.Equal(t, "Go", props["name"])
}

func TestValidateProperties_DoesNotMutateInput(t *testing.T) {
	in := map[string]interface{}{}
	_, err := ValidateProperties(EntityDocument, in)
	require.NoError(t, err)
	assert.NotContains(t, in, "title")
}

func TestValidateScopeOwner(t *testing.T) {
	assert.NoError(t, validateScopeOwner(ScopeUser, "u1"))
	assert.NoError(t, validateScopeOwner(ScopeTwin, "t1"))
	assert.NoError(t, validateScopeOwner(ScopeGlobal, ""))

	assert.Error(t, validateScopeOwner(ScopeUser, ""), "user scope requires an owner")
	assert.Error(t, validateScopeOwner(ScopeGlobal, "u1"), "global scope must not have an owner")
	assert.Error(t, validateScopeOwner(Scope("team"), "u1"), "unknown scope rejected")
}
