// Package groupchat implements turn-based conversations between chat agents.
//
// Every participant is wrapped in a Container that buffers the messages it
// has not seen yet. The GroupChat orchestrator selects one speaker per round,
// requests a reply from that speaker's container through the router, appends
// the reply to the conversation state and evaluates the termination
// condition. At most one reply is outstanding per group chat at any time.
//
// Topics are scoped per chat so several group chats can share one router.
package groupchat
