package checkout

// State is a step of the checkout flow.
type State string

const (
	StateReview           State = "review"
	StatePaymentSelection State = "payment_selection"
	StateProcessing       State = "processing"
	StateSuccess          State = "success"
	StateError            State = "error"
)

var transitions = map[State][]State{
	StateReview:           {StatePaymentSelection},
	StatePaymentSelection: {StateReview, StateProcessing, StateSuccess, StateError},
	StateProcessing:       {StateSuccess, StateError, StateReview},
	StateError:            {StatePaymentSelection, StateReview},
	StateSuccess:          {},
}

// CanTransition reports whether the flow may move from s to to.
func (s State) CanTransition(to State) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s is the end of the flow.
func (s State) Terminal() bool {
	return s == StateSuccess
}
