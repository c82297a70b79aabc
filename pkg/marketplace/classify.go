package marketplace

import "strings"

// Outcome is the interpretation of one marketplace delivery attempt.
type Outcome int

const (
	// OutcomeDelivered means the marketplace accepted the answer.
	OutcomeDelivered Outcome = iota
	// OutcomeAlreadyAnswered means the marketplace rejected the request
	// because the question already has an answer. The desired end state is
	// achieved, so callers treat this as success.
	OutcomeAlreadyAnswered
	// OutcomeTransient means the attempt may succeed if retried.
	OutcomeTransient
	// OutcomePermanent means the request was rejected and retrying is futile.
	OutcomePermanent
)

// duplicatePhrases are the known marketplace error-body fragments indicating
// the question was answered by a prior attempt or a concurrent caller. The
// marketplace reports this as free text, so the matching is substring-based
// and deliberately contained here.
var duplicatePhrases = []string{
	"already answered",
	"already_answered",
	"already been answered",
}

// ClassifyResponse interprets an HTTP status and response body from the
// answer-submission endpoint.
//
// Any 2xx is a delivery. A 400 whose body indicates a duplicate is absorbed
// as OutcomeAlreadyAnswered. 401/403 are transient because freshly rotated
// tokens can be momentarily inconsistent on the marketplace side; 429 and
// 5xx are transient by nature. Every other 4xx is permanent.
func ClassifyResponse(status int, body []byte) Outcome {
	if status >= 200 && status < 300 {
		return OutcomeDelivered
	}

	if status == 400 && containsDuplicatePhrase(body) {
		return OutcomeAlreadyAnswered
	}

	switch {
	case status == 401 || status == 403 || status == 429:
		return OutcomeTransient
	case status >= 500:
		return OutcomeTransient
	default:
		return OutcomePermanent
	}
}

func containsDuplicatePhrase(body []byte) bool {
	text := strings.ToLower(string(body))
	for _, phrase := range duplicatePhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
