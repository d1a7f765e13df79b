package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef keeps the domain messages free of direct PID fields.
type ActorRef actor.PID

// ActorRequestMixIn lets a bus request name a recipient other than its
// sender, as the master does when it routes on behalf of a caller.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponseMixIn carries the bus error of a response. A response with an
// error still carries whatever partial data the request produced.
type ActorResponseMixIn struct {
	ResponseError error
}

// FailedWith is the mix-in of a response that failed with err.
func FailedWith(err error) ActorResponseMixIn {
	return ActorResponseMixIn{ResponseError: err}
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
