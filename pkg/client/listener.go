package client

// ConnectionListener is notified of the outcome of a Connect call. Both
// methods run on the client's callback executor.
type ConnectionListener interface {
	OnSuccess()
	OnFailure(err error)
}

// ConnectionListenerFuncs adapts plain functions to ConnectionListener.
// Nil fields are skipped.
type ConnectionListenerFuncs struct {
	Success func()
	Failure func(err error)
}

func (f ConnectionListenerFuncs) OnSuccess() {
	if f.Success != nil {
		f.Success()
	}
}

func (f ConnectionListenerFuncs) OnFailure(err error) {
	if f.Failure != nil {
		f.Failure(err)
	}
}
