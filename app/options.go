package app

import (
	"github.com/hyvewellness/tenantgate/database"
	"github.com/hyvewellness/tenantgate/tenant"
	"github.com/hyvewellness/tenantgate/tenant/invalidation"
)

// Options replaces dependencies New would otherwise build from configuration.
// Tests use it to inject sqlmock connections and in-memory sources.
type Options struct {
	// Database is used instead of opening database.* from the config.
	Database database.Interface
	// Source overrides the tenancy.source selection.
	Source tenant.Source
	// Bus overrides the invalidation.transport selection.
	Bus invalidation.Bus
}
