package trialpay

import "github.com/xraph/trialpay/id"

// ID is the identifier type for all trialpay entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
