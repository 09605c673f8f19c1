/*
Package hublifetime contains the in-process lifetime manager of a hub: the part of a real time messaging server
which knows which connections exist, which groups and users they belong to, and how to send an invocation
to all of them, to single connections, to groups or to users.

Basics

A hub is the server side class of a SignalR style server. Its methods are invoked by clients, and it invokes
methods on its clients. The HubLifetimeManager does the latter: a hub method calls
Clients().Group("room").Send(ctx, "receive", msg) and the manager resolves the group to its current connections,
serializes the invocation once per protocol and hands it off to each connection.
For the hub protocol see https://github.com/dotnet/aspnetcore/blob/main/src/SignalR/docs/specs/HubProtocol.md

Connections

A transport registers each new connection with OnConnected and unregisters it with OnDisconnected.
A Connection is a writer with a context and an id. ConnectionBase can be embedded to implement it,
WebSocketConnection wraps a github.com/coder/websocket connection.
Each registered connection gets its own send path: a bounded queue and a single writer goroutine,
so invocations arrive in the order they were handed off and are never interleaved.
A connection which can not keep up is aborted (AbortSlowConsumer) or loses messages (DropOnSlowConsumer).
A connection whose transport fails is unregistered.

Groups and users

Groups are created by the first AddToGroup and disappear with their last member.
A connection belongs to at most one user, passed at connect time by the Connection or the UserIDProvider option,
or later with AssociateUser. Sends to users do not take exclusion lists.

Sending

Sends never fail because of unknown targets or single broken connections. They fail if the context is canceled
before the targets are resolved, if the manager is closed or if the invocation can not be serialized.

Hubs

Hub instances are short lived: UseHub creates a hub with a HubActivator, initializes it with a HubContext
and releases it when the scope ends, whatever way it ends.
*/
package hublifetime
