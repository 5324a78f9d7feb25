// # Go Client Package for Socket.IO Chat Rooms
//
// This repository provides a Go package for joining a chat room served over Socket.IO, following the conversation and posting to it. A [Client] speaks Engine.IO v4 / Socket.IO v5 over a websocket bound to one namespace, and a [Session] drives the join, chat and leave choreography on top of any [Socket], keeping a timestamped message log that front ends render.
package chat
