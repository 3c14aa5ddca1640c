package gatekeep

import "github.com/workshophq/gatekeep/id"

// ID is the primary identifier type for all gatekeep entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
