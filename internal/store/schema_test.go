package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Producers hand us correlation ids with no format guarantee, so the event
// columns holding them must stay TEXT. A typed column (e.g. UUID) would make
// one malformed id fail its entire all-or-nothing batch, turning a harmless
// event into a batch poisoner.
func TestSchemaCorrelationIDsAreOpaqueText(t *testing.T) {
	t.Parallel()

	require.Regexp(t, `session_id\s+TEXT`, schemaSQL)
	require.Regexp(t, `user_id\s+TEXT`, schemaSQL)
	require.Regexp(t, `entity_id\s+TEXT`, schemaSQL)
	require.Regexp(t, `client_app\s+TEXT`, schemaSQL)
	require.NotRegexp(t, `session_id\s+UUID`, schemaSQL)
}
