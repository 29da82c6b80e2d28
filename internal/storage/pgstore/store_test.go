package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"citygate/internal/storage"
)

func TestTranslate(t *testing.T) {
	authErr := fmt.Errorf("ping: %w", &pq.Error{Code: "28P01", Message: "password authentication failed"})
	assert.True(t, storage.IsAuthRejected(translate(authErr)))

	roleErr := &pq.Error{Code: "28000", Message: "role does not exist"}
	assert.True(t, storage.IsAuthRejected(translate(roleErr)))

	other := &pq.Error{Code: "57P03", Message: "the database system is starting up"}
	assert.False(t, storage.IsAuthRejected(translate(other)))

	assert.NoError(t, translate(nil))
	assert.False(t, storage.IsAuthRejected(translate(errors.New("dial tcp: connection refused"))))
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("create: %w", &pq.Error{Code: codeDuplicateTable})
	assert.True(t, hasCode(err, codeDuplicateTable))
	assert.False(t, hasCode(err, codeUndefinedTable))
	assert.False(t, hasCode(errors.New("plain"), codeDuplicateTable))
}
