/*
Package domain contains the core domain models of a consultation session.

It defines the entities exchanged between the session controller, the rule
trace classifier and the remote inference service. This package is kept pure
and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Answer: the tri-state (yes/no/unknown) value of a question.
  - Target: what the consultation diagnoses (a single visa type or all of them).
  - Session: the runtime snapshot of a consultation (history, conclusions, caveats).
  - Rule: a read-only snapshot of a rule and its condition evaluations.
  - DisplayState: the closed set of states a rule is shown in by the trace.
*/
package domain
