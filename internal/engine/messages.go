package engine

import (
	"github.com/brisca-live/social-client/internal/wire"
)

// msg is the union of everything the engine loop processes. Intents from
// views and inbound frames from the channel go through the same inbox, one
// at a time, so no two store mutations ever interleave.
type msg interface{ isEngineMsg() }

// intents

type sendFriendRequestMsg struct{ to string }

type acceptRequestMsg struct{ id int64 }

type rejectRequestMsg struct{ id int64 }

type removeFriendMsg struct{ name string }

type blockMsg struct{ name string }

type unblockMsg struct{ name string }

type queryBlockStatusMsg struct{ name string }

type sendMessageMsg struct{ to, text string }

type markReadMsg struct{ counterpart string }

type openThreadMsg struct{ counterpart string }

type closeThreadMsg struct{ counterpart string }

type refreshMsg struct{}

type fetchProfileMsg struct {
	username string
	reply    chan ProfileResult
}

type saveProfileMsg struct {
	update wire.UpdateUserProfile
	reply  chan error
}

// internal bookkeeping

type echoTimeoutMsg struct{ token string }

type correlationTimeoutMsg struct{ token string }

type guardExpiredMsg struct{ key string }

type subscribeMsg struct {
	topic Topic
	ch    chan Topic
	reply chan int
}

type unsubscribeMsg struct{ id int }

type readMsg struct {
	fn   func()
	done chan struct{}
}

type shutdownMsg struct{}

func (sendFriendRequestMsg) isEngineMsg()  {}
func (acceptRequestMsg) isEngineMsg()      {}
func (rejectRequestMsg) isEngineMsg()      {}
func (removeFriendMsg) isEngineMsg()       {}
func (blockMsg) isEngineMsg()              {}
func (unblockMsg) isEngineMsg()            {}
func (queryBlockStatusMsg) isEngineMsg()   {}
func (sendMessageMsg) isEngineMsg()        {}
func (markReadMsg) isEngineMsg()           {}
func (openThreadMsg) isEngineMsg()         {}
func (closeThreadMsg) isEngineMsg()        {}
func (refreshMsg) isEngineMsg()            {}
func (fetchProfileMsg) isEngineMsg()       {}
func (saveProfileMsg) isEngineMsg()        {}
func (echoTimeoutMsg) isEngineMsg()        {}
func (correlationTimeoutMsg) isEngineMsg() {}
func (guardExpiredMsg) isEngineMsg()       {}
func (subscribeMsg) isEngineMsg()          {}
func (unsubscribeMsg) isEngineMsg()        {}
func (readMsg) isEngineMsg()               {}
func (shutdownMsg) isEngineMsg()           {}
