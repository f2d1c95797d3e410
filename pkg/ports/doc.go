/*
Package ports defines the driven ports (interfaces) of the consultation client.

These interfaces decouple the session logic from external implementations,
allowing the controller to work with various inference transports and storage
backends.

# Key Interfaces

  - InferenceService: the remote rule engine (start, answer, back, trace).
  - SessionStore: persists and loads consultation sessions.
  - DistributedLocker: provides distributed locking for concurrent session access.
*/
package ports
