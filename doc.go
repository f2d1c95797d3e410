/*
Package consult is a client for a remote rule-based expert system that
diagnoses visa eligibility by asking yes / no / unknown questions.

The inference itself happens on the remote service. consult owns the
consultation session around it: target selection, the question history,
answers, back-navigation, restarts, multi-target aggregation and the
uncertainty caveats attached to conclusions reached with "unknown" answers.
It also classifies the service's rule trace into display states so a UI can
explain the reasoning.

# Usage

	client, err := consult.New("http://localhost:8000/api")
	if err != nil {
		log.Fatal(err)
	}

	ctrl := client.NewConsultation("session-123")
	sess, err := ctrl.Start(ctx, []domain.Target{"E"})
	if err != nil {
		log.Fatal(err)
	}
	for !sess.Finished {
		sess, err = ctrl.Answer(ctx, sess.CurrentQuestion, domain.AnswerYes)
		if err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println(sess.Conclusions)

# Serving

Client.Sessions manages many sessions backed by a ports.SessionStore (memory
or Redis). Client.Handler exposes them as a REST API with server-sent events,
and Client.MCPServer exposes them as Model Context Protocol tools.

# Concurrency

A Controller rejects overlapping mutations with domain.ErrSessionBusy instead
of queuing them. Restart never waits: it bumps the session generation, and
any response still in flight for the old generation is discarded with
domain.ErrSuperseded.
*/
package consult
