package actors

import (
	"context"
)

type ActorCommon[M any] struct {
	inbox   chan M
	ctx     context.Context
	ctxCan  context.CancelFunc
	running RunCheck
}

// MakeCommon creates the shared actor plumbing, with a buffered inbox of chLen.
//
// A negative chLen leaves the inbox nil, for actors that queue work another way.
func MakeCommon[M any](pCtx context.Context, chLen int) *ActorCommon[M] {
	ctx, ctxCan := context.WithCancel(pCtx)

	var inbox chan M = nil

	if chLen >= 0 {
		inbox = make(chan M, chLen)
	}

	return &ActorCommon[M]{
		inbox:   inbox,
		ctx:     ctx,
		ctxCan:  ctxCan,
		running: MakeRunCheck(),
	}
}

func (ac *ActorCommon[M]) Ctx() context.Context {
	return ac.ctx
}

func (ac *ActorCommon[M]) Cancel() {
	ac.ctxCan()
}
