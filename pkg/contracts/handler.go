package contracts

import "github.com/julienschmidt/httprouter"

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Stopper is a background component released during graceful shutdown.
type Stopper interface {
	Stop()
}
