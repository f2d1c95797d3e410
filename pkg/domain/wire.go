package domain

// StartRequest is the body of the inference service start call.
type StartRequest struct {
	VisaType string `json:"visa_type"`
}

// StartResponse is returned by the inference service start call.
type StartResponse struct {
	NextQuestion        string              `json:"next_question"`
	UnknownFacts        []string            `json:"unknown_facts"`
	MissingCriticalInfo []string            `json:"missing_critical_info"`
	IsDerivable         bool                `json:"is_derivable"`
	CurrentTarget       string              `json:"current_target"`
	AllTargetMode       bool                `json:"all_target_mode"`
	AllConclusions      map[string][]string `json:"all_conclusions"`
}

// AnswerRequest is the body of the inference service answer call.
// Answer is always encoded, unknown as an explicit null.
type AnswerRequest struct {
	Question string `json:"question"`
	Answer   Answer `json:"answer"`
}

// UncertainLogic groups the unknown-answered conditions behind each conclusion.
type UncertainLogic struct {
	Groups []CaveatGroup `json:"groups"`
}

// AnswerResponse is returned by the inference service answer call.
type AnswerResponse struct {
	NextQuestion        string              `json:"next_question"`
	Conclusions         []string            `json:"conclusions"`
	UnknownFacts        []string            `json:"unknown_facts"`
	MissingCriticalInfo []string            `json:"missing_critical_info"`
	UncertainFactsLogic *UncertainLogic     `json:"uncertain_facts_logic"`
	IsFinished          bool                `json:"is_finished"`
	InsufficientInfo    bool                `json:"insufficient_info"`
	CurrentTarget       string              `json:"current_target"`
	AllTargetMode       bool                `json:"all_target_mode"`
	AllConclusions      map[string][]string `json:"all_conclusions"`
}

// BackResponse is returned by the inference service back call.
// An empty CurrentQuestion means the service cannot go back further.
type BackResponse struct {
	CurrentQuestion string `json:"current_question"`
}
