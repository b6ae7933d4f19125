package domain

import "context"

// Context is an alias to allow decoupling from std context in domain
// signatures. Adapters and usecases pass context.Context through.
type Context = context.Context
