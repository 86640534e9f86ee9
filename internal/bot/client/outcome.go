package client

// Kind tags which Outcome variant is populated.
type Kind int

const (
	KindSuccess Kind = iota
	KindRejected
	KindTransportFailure
)

// Reason explains why the parsing service rejected a message.
type Reason string

const (
	ReasonIncompleteExpense  Reason = "incomplete_expense"
	ReasonUserNotWhitelisted Reason = "user_not_found"
	ReasonNotAnExpense       Reason = "invalid_expense"
	ReasonUnclassified       Reason = "unclassified"
)

const (
	ReplyIncompleteExpense  = "Please provide both the expense and the amount spent."
	ReplyUserNotWhitelisted = "You are not whitelisted to use this bot. Please contact the bot owner."
	ReplyUnclassified       = "An error occurred while processing your request. Please try again later."
	ReplyTransportFailure   = "An unexpected error occurred. Please try again later."
)

// Outcome is the result of one submission. Exactly one of the variants is set,
// selected by Kind.
type Outcome struct {
	Kind    Kind
	Message string // KindSuccess
	Reason  Reason // KindRejected
	Err     error  // KindTransportFailure
}

func Success(message string) Outcome {
	return Outcome{Kind: KindSuccess, Message: message}
}

func Rejected(reason Reason) Outcome {
	return Outcome{Kind: KindRejected, Reason: reason}
}

func TransportFailure(err error) Outcome {
	return Outcome{Kind: KindTransportFailure, Err: err}
}

// Reply returns the text to send back to the user. ok is false when nothing
// should be sent.
func (o Outcome) Reply() (text string, ok bool) {
	switch o.Kind {
	case KindSuccess:
		return o.Message, o.Message != ""
	case KindRejected:
		switch o.Reason {
		case ReasonIncompleteExpense:
			return ReplyIncompleteExpense, true
		case ReasonUserNotWhitelisted:
			return ReplyUserNotWhitelisted, true
		case ReasonNotAnExpense:
			return "", false
		default:
			return ReplyUnclassified, true
		}
	default:
		return ReplyTransportFailure, true
	}
}

func reasonFor(discriminator string) Reason {
	switch r := Reason(discriminator); r {
	case ReasonIncompleteExpense, ReasonUserNotWhitelisted, ReasonNotAnExpense:
		return r
	default:
		return ReasonUnclassified
	}
}
