/*
Package session drives consultations against the inference service.

A Controller owns a single consultation: it validates targets and answers,
keeps the question history, folds service responses into the session and
discards responses that arrive after a restart. A Manager serves many
consultations keyed by id on top of a ports.SessionStore, so that sessions
survive restarts and can move between replicas, optionally coordinating
replicas through a ports.DistributedLocker.
*/
package session
